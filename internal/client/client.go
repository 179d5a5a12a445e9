package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

var (
	// ErrNotConnected is returned by send operations while the connection is not open.
	ErrNotConnected = errors.New("client not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("client closed")
	// ErrSuperseded marks a connection the relay closed because the same
	// participant connected elsewhere. The client does not reconnect after it.
	ErrSuperseded = errors.New("connection superseded")
)

const writeTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	URL    string
	UserID string

	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	ReconnectMax         time.Duration
	DialTimeout          time.Duration

	Dialer Dialer
	Logger *zerolog.Logger

	// OnStateChange is called after every state transition, outside the client lock.
	OnStateChange func(from, to State)
	// OnReconnect is called when a reconnect attempt is scheduled.
	OnReconnect func(attempt int, delay time.Duration)
}

// DefaultOptions returns 5 reconnect attempts waiting 2s, 4s, 8s, 16s and 30s (1s base, 30s cap).
func DefaultOptions() Options {
	return Options{
		MaxReconnectAttempts: 5,
		ReconnectBase:        time.Second,
		ReconnectMax:         30 * time.Second,
		DialTimeout:          10 * time.Second,
	}
}

// Handler receives a decoded inbound envelope.
type Handler func(env proto.Envelope)

type handlerEntry struct {
	fn Handler
}

// Client keeps one connection to the relay alive for a participant: it
// identifies on every open, replays the last join and reconnects with
// exponential backoff until the attempt budget is spent.
type Client struct {
	opts Options
	log  *zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     Transport
	gen      uint64
	attempts int
	bo       *backoff.ExponentialBackOff
	timer    *time.Timer
	room     string
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc

	handlersMu sync.RWMutex
	handlers   map[proto.Type][]*handlerEntry
}

// New creates a disconnected client. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	} else if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = def.ReconnectBase
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = def.ReconnectMax
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = WSDialer{}
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("participant", opts.UserID).Logger()

	bo := backoff.NewExponentialBackOff()
	// Attempt n waits ReconnectBase·2^n, so the first retry already doubles.
	bo.InitialInterval = min(2*opts.ReconnectBase, opts.ReconnectMax)
	bo.MaxInterval = opts.ReconnectMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.Reset()

	return &Client{
		opts:     opts,
		log:      &l,
		state:    StateDisconnected,
		bo:       bo,
		handlers: make(map[proto.Type][]*handlerEntry),
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. It returns immediately; progress is
// reported through OnStateChange. Cancelling ctx closes the client.
// Calling Connect on a client that gave up starts a fresh attempt budget.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateConnecting, StateOpen, StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	if c.ctx == nil {
		c.ctx, c.cancel = context.WithCancel(ctx)
		context.AfterFunc(c.ctx, func() { _ = c.Close() })
	}
	c.attempts = 0
	c.bo.Reset()
	c.mu.Unlock()

	go c.dial()
	return nil
}

// On registers fn for envelopes of type t. Handlers for one type run in
// registration order. The returned func removes the registration.
func (c *Client) On(t proto.Type, fn Handler) func() {
	entry := &handlerEntry{fn: fn}

	c.handlersMu.Lock()
	c.handlers[t] = append(c.handlers[t], entry)
	c.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.handlersMu.Lock()
			defer c.handlersMu.Unlock()
			list := c.handlers[t]
			for i, e := range list {
				if e == entry {
					c.handlers[t] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(c.handlers[t]) == 0 {
				delete(c.handlers, t)
			}
		})
	}
}

// JoinRoom moves this participant into room. The room is replayed after every reconnect.
func (c *Client) JoinRoom(room string) error {
	return c.send(proto.JoinRoom{UserID: c.opts.UserID, RoomID: room}, func() { c.room = room })
}

// SendMessage relays msg to room.
func (c *Client) SendMessage(room string, msg proto.Message) error {
	if msg.RoomID == "" {
		msg.RoomID = room
	}
	if msg.SenderID == "" {
		msg.SenderID = c.opts.UserID
	}
	if msg.Sender == nil {
		msg.Sender = &proto.Sender{ID: msg.SenderID}
	} else if msg.Sender.ID == "" {
		sender := *msg.Sender
		sender.ID = msg.SenderID
		msg.Sender = &sender
	}
	if len(msg.CreatedAt) == 0 {
		msg.CreatedAt = proto.Stamp(time.Now())
	}
	return c.send(proto.ChatMessage{RoomID: room, Message: msg}, nil)
}

// MarkRead reports room as read.
func (c *Client) MarkRead(room string) error {
	return c.send(proto.MarkRead{RoomID: room}, nil)
}

// Close stops reconnecting, closes the transport and drops all handlers.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	from := c.state
	c.state = StateDisconnected
	cancel := c.cancel
	c.mu.Unlock()

	c.handlersMu.Lock()
	c.handlers = make(map[proto.Type][]*handlerEntry)
	c.handlersMu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.notify(from, StateDisconnected)
	return err
}

func (c *Client) send(env proto.Envelope, onSent func()) error {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		state := c.state
		c.mu.Unlock()
		c.log.Warn().Str("type", string(env.Type())).Stringer("state", state).Msg("not connected, envelope not sent")
		return ErrNotConnected
	}
	conn := c.conn
	ctx := c.ctx
	if onSent != nil {
		onSent()
	}
	c.mu.Unlock()

	return c.write(ctx, conn, env)
}

func (c *Client) write(ctx context.Context, conn Transport, env proto.Envelope) error {
	data, err := proto.Encode(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		c.log.Warn().Err(err).Str("type", string(env.Type())).Msg("write envelope")
		return err
	}
	return nil
}

func (c *Client) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.gen++
	gen := c.gen
	ctx := c.ctx
	from := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.notify(from, StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(dialCtx, c.opts.URL)
	cancel()
	if err != nil {
		c.log.Warn().Err(err).Str("url", c.opts.URL).Msg("connect failed")
		c.handleClose(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	room := c.room
	c.mu.Unlock()

	if err := c.write(ctx, conn, proto.Identify{UserID: c.opts.UserID}); err != nil {
		c.handleClose(gen, err)
		return
	}
	if room != "" {
		if err := c.write(ctx, conn, proto.JoinRoom{UserID: c.opts.UserID, RoomID: room}); err != nil {
			c.handleClose(gen, err)
			return
		}
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.bo.Reset()
	from = c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.log.Info().Str("url", c.opts.URL).Str("room", room).Msg("connected")
	c.notify(from, StateOpen)

	go c.readLoop(ctx, gen, conn)
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Transport) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		env, err := proto.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("inbound envelope dropped")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env proto.Envelope) {
	c.handlersMu.RLock()
	list := append([]*handlerEntry(nil), c.handlers[env.Type()]...)
	c.handlersMu.RUnlock()

	for _, e := range list {
		e.fn(env)
	}
}

// handleClose runs once per connection generation: a stale generation means
// the client was closed or already moved on.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	// Invalidate the generation so a second report for it is ignored.
	c.gen++
	if conn != nil {
		// The close handshake can block; never hold the lock across it.
		defer conn.Close()
	}

	if errors.Is(cause, ErrSuperseded) {
		from := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.log.Warn().Msg("connection superseded by another session, not reconnecting")
		c.notify(from, StateDisconnected)
		return
	}

	if c.attempts >= c.opts.MaxReconnectAttempts {
		from := c.setStateLocked(StateGivenUp)
		attempts := c.attempts
		c.mu.Unlock()
		c.log.Error().Err(cause).Int("attempts", attempts).Msg("reconnect attempts exhausted")
		c.notify(from, StateGivenUp)
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.bo.NextBackOff()
	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, c.dial)
	from := c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	c.log.Info().Err(cause).Int("attempt", attempt).Dur("delay", delay).Msg("connection lost, reconnect scheduled")
	c.notify(from, StateReconnecting)
	if c.opts.OnReconnect != nil {
		c.opts.OnReconnect(attempt, delay)
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) setStateLocked(s State) State {
	from := c.state
	c.state = s
	return from
}

func (c *Client) notify(from, to State) {
	if from == to || c.opts.OnStateChange == nil {
		return
	}
	c.opts.OnStateChange(from, to)
}
