package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// ErrHubStopped is returned by queries issued after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// MembershipStore persists the participant → room mapping. Implementations
// report failures as ok=false instead of returning errors.
type MembershipStore interface {
	GetRoomFor(ctx context.Context, participant string) (room string, ok bool)
	SetRoomFor(ctx context.Context, participant, room string) bool
}

// JobRunner executes store work off the hub goroutine. Jobs submitted with the
// same key must run in submission order.
type JobRunner interface {
	Submit(key string, job func(ctx context.Context)) bool
}

// Options configures hub behaviour.
type Options struct {
	// IncludeSender delivers a chat message back to the connection that sent it.
	IncludeSender bool
	// InboxSize is the capacity of the hub's command queue.
	InboxSize int
	// Now stamps outgoing messages. Defaults to time.Now.
	Now func() time.Time
	// NewID generates message ids. Defaults to utils.NewID.
	NewID func() string
}

// DefaultOptions returns the relay defaults: senders receive their own messages.
func DefaultOptions() Options {
	return Options{IncludeSender: true, InboxSize: 256}
}

// Hub owns the connection registry. Every mutation runs on the goroutine
// started by Run, so registry access needs no locking and broadcasts to a room
// reach each member in the order the hub processed them.
type Hub struct {
	registry *Registry
	clients  map[*Client]struct{}
	store    MembershipStore
	jobs     JobRunner
	opts     Options
	log      *zerolog.Logger

	inbox   chan hubMsg
	stopped chan struct{}
}

type hubMsg any

type registerMsg struct{ client *Client }

type unregisterMsg struct{ client *Client }

type commandMsg struct {
	client *Client
	cmd    *Command
}

type restoredMsg struct {
	client      *Client
	participant string
	room        string
}

type participantsQuery struct {
	room  string
	reply chan []string
}

type roomQuery struct {
	participant string
	reply       chan roomAnswer
}

type roomAnswer struct {
	room string
	ok   bool
}

// NewHub creates a hub. store and jobs may be nil: without a store nothing is
// persisted or restored; without a runner store calls run on their own goroutines.
func NewHub(store MembershipStore, jobs JobRunner, opts Options, logger *zerolog.Logger) *Hub {
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultOptions().InboxSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = utils.NewID
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewRegistry(),
		clients:  make(map[*Client]struct{}),
		store:    store,
		jobs:     jobs,
		opts:     opts,
		log:      logger,
		inbox:    make(chan hubMsg, opts.InboxSize),
		stopped:  make(chan struct{}),
	}
}

// Run processes hub messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case msg := <-h.inbox:
			h.handle(msg)
		}
	}
}

// RegisterClient adds a freshly accepted connection.
func (h *Hub) RegisterClient(c *Client) {
	h.send(registerMsg{client: c})
}

// UnregisterClient removes a closed connection.
func (h *Hub) UnregisterClient(c *Client) {
	h.send(unregisterMsg{client: c})
}

// Dispatch queues a command from c. Commands from one connection are processed in order.
func (h *Hub) Dispatch(c *Client, cmd *Command) {
	h.send(commandMsg{client: c, cmd: cmd})
}

// Participants lists the participants currently in room.
func (h *Hub) Participants(ctx context.Context, room string) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.query(ctx, participantsQuery{room: room, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.stopped:
		return nil, ErrHubStopped
	}
}

// RoomOf reports the room of participant's live connection.
func (h *Hub) RoomOf(ctx context.Context, participant string) (string, bool, error) {
	reply := make(chan roomAnswer, 1)
	if err := h.query(ctx, roomQuery{participant: participant, reply: reply}); err != nil {
		return "", false, err
	}
	select {
	case ans := <-reply:
		return ans.room, ans.ok, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-h.stopped:
		return "", false, ErrHubStopped
	}
}

func (h *Hub) query(ctx context.Context, msg hubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) send(msg hubMsg) {
	select {
	case h.inbox <- msg:
	case <-h.stopped:
	}
}

func (h *Hub) handle(msg hubMsg) {
	switch m := msg.(type) {
	case registerMsg:
		h.clients[m.client] = struct{}{}
		h.log.Debug().Str("client_id", m.client.ID).Int("connections", len(h.clients)).Msg("client connected")
	case unregisterMsg:
		h.unregister(m.client)
	case commandMsg:
		if _, ok := h.clients[m.client]; !ok {
			h.log.Debug().Str("client_id", m.client.ID).Stringer("cmd", m.cmd.Kind).Msg("command from unknown client dropped")
			return
		}
		h.handleCommand(m.client, m.cmd)
	case restoredMsg:
		h.applyRestore(m)
	case participantsQuery:
		m.reply <- h.registry.Participants(m.room)
	case roomQuery:
		var ans roomAnswer
		if c := h.registry.Get(m.participant); c != nil && c.Room != "" {
			ans = roomAnswer{room: c.Room, ok: true}
		}
		m.reply <- ans
	}
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandIdentify:
		h.identify(c, cmd.Participant)
	case CommandJoinRoom:
		h.joinRoom(c, cmd)
	case CommandSendRoomMessage:
		h.broadcast(c, cmd)
	case CommandMarkRead:
		h.log.Debug().Str("participant", c.Participant).Str("room", cmd.Room).Msg("mark-read ignored")
	default:
		h.log.Warn().Str("client_id", c.ID).Int("kind", int(cmd.Kind)).Msg("unknown command kind")
	}
}

func (h *Hub) identify(c *Client, participant string) {
	if participant == "" {
		h.log.Warn().Str("client_id", c.ID).Msg("identify without participant ignored")
		return
	}

	if c.Participant != "" && c.Participant != participant {
		h.registry.Remove(c.Participant, c)
	}
	c.Participant = participant

	if prev := h.registry.Put(participant, c); prev != nil {
		// The older connection is no longer addressable; close it instead of
		// leaving a second live transport attributed to the same participant.
		prev.Participant = ""
		delete(h.clients, prev)
		prev.release(ReleaseSuperseded)
		h.log.Info().
			Str("participant", participant).
			Str("client_id", c.ID).
			Str("superseded_id", prev.ID).
			Msg("connection superseded")
	}

	h.log.Info().Str("participant", participant).Str("client_id", c.ID).Int("participants", h.registry.Len()).Msg("client identified")

	if c.Room != "" || h.store == nil {
		return
	}

	h.runStore(participant, func(ctx context.Context) {
		room, ok := h.store.GetRoomFor(ctx, participant)
		if !ok {
			return
		}
		h.send(restoredMsg{client: c, participant: participant, room: room})
	})
}

func (h *Hub) applyRestore(m restoredMsg) {
	c := m.client
	// An explicit join, a re-identify or a disconnect since the lookup was
	// scheduled all take precedence over the stored room.
	if h.registry.Get(m.participant) != c || c.Participant != m.participant || c.Room != "" {
		return
	}
	c.Room = m.room
	h.log.Info().Str("participant", m.participant).Str("room", m.room).Msg("room restored")
}

func (h *Hub) joinRoom(c *Client, cmd *Command) {
	c.Room = cmd.Room

	participant := c.Participant
	if participant == "" {
		participant = cmd.Participant
	} else if cmd.Participant != "" && cmd.Participant != participant {
		h.log.Warn().
			Str("participant", participant).
			Str("claimed", cmd.Participant).
			Msg("join-room user differs from identified participant; using identified")
	}

	h.log.Info().Str("participant", participant).Str("client_id", c.ID).Str("room", cmd.Room).Msg("joined room")

	if h.store == nil {
		return
	}
	if participant == "" {
		h.log.Warn().Str("client_id", c.ID).Str("room", cmd.Room).Msg("join-room before identify; membership not persisted")
		return
	}

	room := cmd.Room
	h.runStore(participant, func(ctx context.Context) {
		h.store.SetRoomFor(ctx, participant, room)
	})
}

func (h *Hub) broadcast(sender *Client, cmd *Command) {
	msg := cmd.Message
	msg.ID = h.opts.NewID()
	msg.Timestamp = h.opts.Now().UTC()

	event := &Event{Kind: EventNewMessage, Room: cmd.Room, Message: msg}

	delivered := 0
	for _, member := range h.registry.InRoom(cmd.Room) {
		if member == sender && !h.opts.IncludeSender {
			continue
		}
		if h.deliver(member, event) {
			delivered++
		}
	}

	h.log.Debug().
		Str("room", cmd.Room).
		Str("message_id", msg.ID).
		Str("sender", sender.Participant).
		Int("delivered", delivered).
		Msg("message broadcast")
}

// deliver never blocks the hub: a full buffer drops the event for that client.
func (h *Hub) deliver(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		h.log.Warn().Str("participant", c.Participant).Str("client_id", c.ID).Msg("slow consumer, event dropped")
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if c.Participant != "" {
		// The durable membership record is kept for the next identify.
		h.registry.Remove(c.Participant, c)
	}
	c.release(ReleaseClosed)
	h.log.Debug().
		Str("participant", c.Participant).
		Str("client_id", c.ID).
		Int("participants", h.registry.Len()).
		Msg("client disconnected")
}

func (h *Hub) runStore(key string, job func(ctx context.Context)) {
	if h.jobs == nil {
		go job(context.Background())
		return
	}
	if !h.jobs.Submit(key, job) {
		h.log.Warn().Str("participant", key).Msg("membership worker queue full, store call skipped")
	}
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		c.release(ReleaseShutdown)
	}
	h.log.Info().Int("connections", len(h.clients)).Msg("hub stopped")
}
