package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

// fakeStore is an in-memory MembershipStore that can be switched off.
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string]string
	down  bool
	sets  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string]string)}
}

func (s *fakeStore) GetRoomFor(_ context.Context, participant string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", false
	}
	room, ok := s.rooms[participant]
	return room, ok
}

func (s *fakeStore) SetRoomFor(_ context.Context, participant, room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return false
	}
	s.sets++
	s.rooms[participant] = room
	return true
}

func (s *fakeStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *fakeStore) room(participant string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[participant]
	return room, ok
}

// startHub runs a hub for the duration of the test.
func startHub(t *testing.T, store MembershipStore, opts Options) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(store, nil, opts, nil)
	go hub.Run(ctx)
	return hub
}

// connect registers a client and identifies it as participant.
func connect(hub *Hub, id, participant string) *Client {
	c := NewClient(id, 8)
	hub.RegisterClient(c)
	hub.Dispatch(c, &Command{Kind: CommandIdentify, Participant: participant})
	return c
}

func waitRoom(t *testing.T, hub *Hub, participant, want string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		room, ok, err := hub.RoomOf(context.Background(), participant)
		if err != nil {
			t.Fatalf("room query: %v", err)
		}
		if ok && room == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("participant %s never reached room %q", participant, want)
}
