package core

import "sort"

// Registry maps participants to their live connection handle.
// It is not safe for concurrent use; the hub goroutine is its only user.
type Registry struct {
	byParticipant map[string]*Client
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byParticipant: make(map[string]*Client)}
}

// Put registers c for participant and returns the handle it replaced, if any.
func (r *Registry) Put(participant string, c *Client) *Client {
	prev := r.byParticipant[participant]
	r.byParticipant[participant] = c
	if prev == c {
		return nil
	}
	return prev
}

// Get returns the handle registered for participant.
func (r *Registry) Get(participant string) *Client {
	return r.byParticipant[participant]
}

// Remove deletes the entry for participant only if it still points at c,
// so a late close of a superseded connection cannot evict its replacement.
func (r *Registry) Remove(participant string, c *Client) bool {
	if cur, ok := r.byParticipant[participant]; !ok || cur != c {
		return false
	}
	delete(r.byParticipant, participant)
	return true
}

// InRoom returns a snapshot of the handles currently in room.
func (r *Registry) InRoom(room string) []*Client {
	var out []*Client
	for _, c := range r.byParticipant {
		if c.Room == room {
			out = append(out, c)
		}
	}
	return out
}

// Participants lists the participant ids in room, sorted.
func (r *Registry) Participants(room string) []string {
	out := make([]string, 0)
	for p, c := range r.byParticipant {
		if c.Room == room {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered participants.
func (r *Registry) Len() int {
	return len(r.byParticipant)
}
