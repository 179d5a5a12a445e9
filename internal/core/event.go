package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage delivers a server-stamped chat message to a room member.
	EventNewMessage EventKind = iota
	// EventError notifies a client that one of its envelopes was rejected.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Room    string
	Message Message
	Error   *CoreError
}
