package http

import (
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// envelopeToCommand maps a decoded client envelope onto a hub command.
func envelopeToCommand(env proto.Envelope) (*core.Command, *core.CoreError) {
	switch e := env.(type) {
	case proto.Identify:
		return &core.Command{Kind: core.CommandIdentify, Participant: e.UserID}, nil
	case proto.JoinRoom:
		return &core.Command{Kind: core.CommandJoinRoom, Participant: e.UserID, Room: e.RoomID}, nil
	case proto.ChatMessage:
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Room: e.RoomID,
			Message: core.Message{
				Room:      e.Message.RoomID,
				Content:   e.Message.Content,
				SenderID:  e.Message.SenderID,
				Sender:    authorFromSender(e.Message.Sender),
				CreatedAt: e.Message.CreatedAt,
			},
		}, nil
	case proto.MarkRead:
		return &core.Command{Kind: core.CommandMarkRead, Room: e.RoomID}, nil
	case proto.NewMessage, proto.Error:
		return nil, core.NewError(core.ErrCodeBadRequest, "envelope type is server-to-client only")
	default:
		return nil, core.NewError(core.ErrCodeUnknownType, "unknown message type")
	}
}

func envelopeFromEvent(event *core.Event) proto.Envelope {
	switch event.Kind {
	case core.EventNewMessage:
		m := event.Message
		return proto.NewMessage{
			RoomID: event.Room,
			Message: proto.Message{
				ID:        m.ID,
				Content:   m.Content,
				SenderID:  m.SenderID,
				Sender:    senderFromAuthor(m.Sender),
				RoomID:    m.Room,
				CreatedAt: m.CreatedAt,
				Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Code: core.ErrCodeBadRequest}
		}
		return proto.Error{Code: event.Error.Code, Msg: event.Error.Message}
	default:
		return proto.Error{Code: core.ErrCodeBadRequest, Msg: "unsupported event"}
	}
}

func authorFromSender(s *proto.Sender) *core.Author {
	if s == nil {
		return nil
	}
	return &core.Author{ID: s.ID, Name: s.Name}
}

func senderFromAuthor(a *core.Author) *proto.Sender {
	if a == nil {
		return nil
	}
	return &proto.Sender{ID: a.ID, Name: a.Name}
}
