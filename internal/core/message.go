package core

import "time"

// Author is the message sender as the client described it.
type Author struct {
	ID   string
	Name string
}

// Message is the domain model for a chat message.
// ID and Timestamp are assigned by the hub at dispatch time; the other
// fields are relayed untouched and must not be mutated after dispatch.
type Message struct {
	ID        string
	Room      string
	Content   string
	SenderID  string
	Sender    *Author
	CreatedAt []byte // client-supplied JSON value, opaque to the hub
	Timestamp time.Time
}
