package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// Transport is one live connection to the relay carrying encoded envelopes.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WSDialer dials the relay over websocket.
type WSDialer struct {
	Header    http.Header
	ReadLimit int64
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusCode(proto.CloseSuperseded) {
			return nil, fmt.Errorf("%w: %v", ErrSuperseded, err)
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "bye")
}
