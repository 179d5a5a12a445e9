package core

import "sync"

// DefaultEventBuffer is the per-connection outbound queue length.
const DefaultEventBuffer = 32

// Client is a connection handle: one live transport plus its room assignment.
// Participant and Room are owned by the hub goroutine and must not be touched elsewhere.
type Client struct {
	ID          string
	Participant string
	Room        string
	Events      chan *Event

	done      chan struct{}
	closeOnce sync.Once
	reason    ReleaseReason
}

// ReleaseReason explains why the hub released a handle.
type ReleaseReason int

const (
	// ReleaseClosed means the connection was unregistered by its transport.
	ReleaseClosed ReleaseReason = iota
	// ReleaseSuperseded means a newer connection identified as the same participant.
	ReleaseSuperseded
	// ReleaseShutdown means the hub stopped.
	ReleaseShutdown
)

// NewClient constructs a handle with an event buffer of the given size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Done is closed when the hub releases the handle, either because the
// connection was unregistered or because a newer connection superseded it.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Reason reports why the handle was released. Only meaningful after Done is closed.
func (c *Client) Reason() ReleaseReason {
	<-c.done
	return c.reason
}

func (c *Client) release(reason ReleaseReason) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}
