package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

var errDialRefused = errors.New("connection refused")

type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	// closeGate, when set, makes Close block until it is closed.
	closeGate chan struct{}

	mu      sync.Mutex
	sent    []proto.Envelope
	readErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.closed:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.readErr != nil {
			return nil, t.readErr
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Write(_ context.Context, data []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	env, err := proto.Decode(data)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, env)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	if t.closeGate != nil {
		<-t.closeGate
	}
	return nil
}

// drop simulates the server closing the connection with err.
func (t *fakeTransport) drop(err error) {
	t.mu.Lock()
	t.readErr = err
	t.mu.Unlock()
	t.once.Do(func() { close(t.closed) })
}

func (t *fakeTransport) push(tb testing.TB, env proto.Envelope) {
	tb.Helper()
	data, err := proto.Encode(env)
	require.NoError(tb, err)
	t.in <- data
}

func (t *fakeTransport) sentEnvelopes() []proto.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]proto.Envelope(nil), t.sent...)
}

// fakeDialer hands out transports in order; a nil entry or an exhausted
// list makes the dial fail.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.transports) == 0 {
		return nil, errDialRefused
	}
	next := d.transports[0]
	d.transports = d.transports[1:]
	if next == nil {
		return nil, errDialRefused
	}
	return next, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(_, to State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, 2*time.Millisecond,
		"client never reached %s", want)
}

func waitSent(t *testing.T, tr *fakeTransport, n int) []proto.Envelope {
	t.Helper()
	require.Eventually(t, func() bool { return len(tr.sentEnvelopes()) >= n }, 2*time.Second, 2*time.Millisecond,
		"expected %d envelopes to be sent", n)
	return tr.sentEnvelopes()
}
