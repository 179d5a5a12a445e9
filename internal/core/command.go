package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandIdentify binds the connection to a participant and restores its last room.
	CommandIdentify CommandKind = iota
	// CommandJoinRoom moves the connection into a room and persists the membership.
	CommandJoinRoom
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandMarkRead is accepted for protocol compatibility and has no effect.
	CommandMarkRead
)

func (k CommandKind) String() string {
	switch k {
	case CommandIdentify:
		return "identify"
	case CommandJoinRoom:
		return "join-room"
	case CommandSendRoomMessage:
		return "chat-message"
	case CommandMarkRead:
		return "mark-read"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind        CommandKind
	Participant string
	Room        string
	Message     Message
}
