package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the discriminator carried in every envelope.
type Type string

const (
	TypeIdentify    Type = "identify"
	TypeJoinRoom    Type = "join-room"
	TypeChatMessage Type = "chat-message"
	TypeNewMessage  Type = "new-message"
	TypeMarkRead    Type = "mark-read"
	TypeError       Type = "error"
)

// CloseSuperseded is the websocket close code sent to a connection that was
// replaced by a newer connection for the same participant. Clients must not
// reconnect automatically after receiving it.
const CloseSuperseded = 4000

var (
	// ErrMalformed is returned for frames that are not valid envelopes.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownType is returned for envelopes with an unrecognised type.
	ErrUnknownType = errors.New("unknown envelope type")
)

// Envelope is one unit exchanged over the relay connection.
// The set of implementations is closed: only this package can add variants.
type Envelope interface {
	Type() Type
	isEnvelope()
}

// Sender identifies the author of a chat message.
type Sender struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Message is the chat payload relayed between room members. The relay adds
// ID and Timestamp; every other field is echoed as the sender wrote it, and
// CreatedAt is kept verbatim (ISO string, epoch millis or absent).
type Message struct {
	ID        string          `json:"id,omitempty"`
	Content   string          `json:"content"`
	SenderID  string          `json:"senderId,omitempty"`
	Sender    *Sender         `json:"sender,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Stamp formats t as a CreatedAt value.
func Stamp(t time.Time) json.RawMessage {
	data, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return data
}

// Identify binds a connection to a participant.
type Identify struct {
	UserID string
}

// JoinRoom moves the connection into a room.
type JoinRoom struct {
	UserID string
	RoomID string
}

// ChatMessage is a message a client wants delivered to a room.
type ChatMessage struct {
	RoomID  string
	Message Message
}

// NewMessage is the server-stamped message delivered to room members.
type NewMessage struct {
	RoomID  string
	Message Message
}

// MarkRead is client-side read bookkeeping; the relay does not act on it.
type MarkRead struct {
	RoomID string
}

// Error reports a rejected envelope back to the sender.
type Error struct {
	Code string
	Msg  string
}

func (Identify) Type() Type    { return TypeIdentify }
func (JoinRoom) Type() Type    { return TypeJoinRoom }
func (ChatMessage) Type() Type { return TypeChatMessage }
func (NewMessage) Type() Type  { return TypeNewMessage }
func (MarkRead) Type() Type    { return TypeMarkRead }
func (Error) Type() Type       { return TypeError }

func (Identify) isEnvelope()    {}
func (JoinRoom) isEnvelope()    {}
func (ChatMessage) isEnvelope() {}
func (NewMessage) isEnvelope()  {}
func (MarkRead) isEnvelope()    {}
func (Error) isEnvelope()       {}

// wire is the flat JSON shape shared by every envelope type.
type wire struct {
	Type    Type     `json:"type"`
	UserID  string   `json:"userId,omitempty"`
	RoomID  string   `json:"roomId,omitempty"`
	Message *Message `json:"message,omitempty"`
	Code    string   `json:"code,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Decode parses a single frame into its envelope variant.
func Decode(data []byte) (Envelope, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Type {
	case TypeIdentify:
		if w.UserID == "" {
			return nil, missing(w.Type, "userId")
		}
		return Identify{UserID: w.UserID}, nil
	case TypeJoinRoom:
		if w.RoomID == "" {
			return nil, missing(w.Type, "roomId")
		}
		return JoinRoom{UserID: w.UserID, RoomID: w.RoomID}, nil
	case TypeChatMessage:
		if w.RoomID == "" {
			return nil, missing(w.Type, "roomId")
		}
		if w.Message == nil {
			return nil, missing(w.Type, "message")
		}
		return ChatMessage{RoomID: w.RoomID, Message: *w.Message}, nil
	case TypeNewMessage:
		if w.RoomID == "" {
			return nil, missing(w.Type, "roomId")
		}
		if w.Message == nil {
			return nil, missing(w.Type, "message")
		}
		return NewMessage{RoomID: w.RoomID, Message: *w.Message}, nil
	case TypeMarkRead:
		return MarkRead{RoomID: w.RoomID}, nil
	case TypeError:
		return Error{Code: w.Code, Msg: w.Error}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
}

// Encode renders an envelope in its wire form.
func Encode(env Envelope) ([]byte, error) {
	w := wire{Type: env.Type()}

	switch e := env.(type) {
	case Identify:
		w.UserID = e.UserID
	case JoinRoom:
		w.UserID = e.UserID
		w.RoomID = e.RoomID
	case ChatMessage:
		w.RoomID = e.RoomID
		msg := e.Message
		w.Message = &msg
	case NewMessage:
		w.RoomID = e.RoomID
		msg := e.Message
		w.Message = &msg
	case MarkRead:
		w.RoomID = e.RoomID
	case Error:
		w.Code = e.Code
		w.Error = e.Msg
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, env)
	}

	return json.Marshal(w)
}

func missing(t Type, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrMalformed, t, field)
}
