package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

func startRelay(t *testing.T) (string, *core.Hub) {
	t.Helper()

	cfg := config.Default()
	logger := zerolog.Nop()
	hub := core.NewHub(nil, nil, core.DefaultOptions(), &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(transporthttp.NewServer(hub, &cfg, &logger).Handler)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return strings.Replace(server.URL, "http", "ws", 1) + "/ws", hub
}

func connectClient(t *testing.T, url, user string) *Client {
	t.Helper()
	c := New(Options{URL: url, UserID: user, ReconnectBase: 5 * time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Connect(context.Background()))
	waitState(t, c, StateOpen)
	return c
}

func joinAndWait(t *testing.T, hub *core.Hub, c *Client, user, room string) {
	t.Helper()
	require.NoError(t, c.JoinRoom(room))
	require.Eventually(t, func() bool {
		got, ok, err := hub.RoomOf(context.Background(), user)
		return err == nil && ok && got == room
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClientsExchangeMessagesThroughRelay(t *testing.T) {
	url, hub := startRelay(t)

	alice := connectClient(t, url, "alice")
	bob := connectClient(t, url, "bob")

	received := make(chan proto.NewMessage, 4)
	bob.On(proto.TypeNewMessage, func(env proto.Envelope) {
		received <- env.(proto.NewMessage)
	})

	joinAndWait(t, hub, alice, "alice", "lobby")
	joinAndWait(t, hub, bob, "bob", "lobby")

	require.NoError(t, alice.SendMessage("lobby", proto.Message{
		Content: "hello",
		Sender:  &proto.Sender{Name: "Alice"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "lobby", msg.RoomID)
		assert.Equal(t, "hello", msg.Message.Content)
		assert.Equal(t, "alice", msg.Message.SenderID)
		require.NotNil(t, msg.Message.Sender)
		assert.Equal(t, "alice", msg.Message.Sender.ID)
		assert.Equal(t, "Alice", msg.Message.Sender.Name)
		assert.NotEmpty(t, msg.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("bob did not receive the message")
	}
}

func TestSupersededClientStaysDisconnected(t *testing.T) {
	url, _ := startRelay(t)

	first := connectClient(t, url, "carol")
	connectClient(t, url, "carol")

	waitState(t, first, StateDisconnected)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, first.State())
}
