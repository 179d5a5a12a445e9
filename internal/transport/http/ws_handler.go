package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

const writeTimeout = 5 * time.Second

var errReleased = errors.New("connection released by hub")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	relay Relay
	cfg   config.RelayConfig
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay Relay, cfg config.RelayConfig, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{relay: relay, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.cfg.EventBuffer)
	h.relay.RegisterClient(client)
	defer h.relay.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	// Close before cancelling: a cancelled read context tears the connection
	// down without a close frame and the peer would never see the status.
	status, reason := h.closeStatus(err, client)
	conn.Close(status, reason)
	cancel()
	<-errCh
}

func (h *WSHandler) closeStatus(err error, client *core.Client) (websocket.StatusCode, string) {
	if errors.Is(err, errReleased) {
		switch client.Reason() {
		case core.ReleaseSuperseded:
			return websocket.StatusCode(proto.CloseSuperseded), "superseded"
		case core.ReleaseShutdown:
			return websocket.StatusGoingAway, "server shutting down"
		default:
			return websocket.StatusNormalClosure, "closing"
		}
	}

	if err == nil || isExpectedClose(err) {
		return websocket.StatusNormalClosure, "closing"
	}
	h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if isExpectedClose(err) {
				h.log.Debug().Str("client_id", client.ID).Msg("ws closed by peer")
			} else {
				h.log.Warn().Err(err).Str("client_id", client.ID).Msg("read ws inbound")
			}
			return err
		}

		if !limiter.allow() {
			h.log.Warn().Str("client_id", client.ID).Msg("rate limit exceeded, envelope dropped")
			if err := h.reject(ctx, conn, core.NewError(core.ErrCodeRateLimited, "rate limit exceeded")); err != nil {
				return err
			}
			continue
		}

		env, err := proto.Decode(data)
		if err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("malformed envelope dropped")
			code := core.ErrCodeBadRequest
			if errors.Is(err, proto.ErrUnknownType) {
				code = core.ErrCodeUnknownType
			}
			if err := h.reject(ctx, conn, core.NewError(code, err.Error())); err != nil {
				return err
			}
			continue
		}

		cmd, coreErr := envelopeToCommand(env)
		if coreErr != nil {
			h.log.Warn().Str("client_id", client.ID).Str("type", string(env.Type())).Msg(coreErr.Message)
			if err := h.reject(ctx, conn, coreErr); err != nil {
				return err
			}
			continue
		}

		h.relay.Dispatch(client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := writeEnvelope(ctx, conn, envelopeFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errReleased
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reject reports a dropped envelope to the sender when error reporting is enabled.
// The connection always stays open.
func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, coreErr *core.CoreError) error {
	if !h.cfg.ReportErrors {
		return nil
	}
	return writeEnvelope(ctx, conn, envelopeFromEvent(core.ErrorEvent(coreErr)))
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env proto.Envelope) error {
	data, err := proto.Encode(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func isExpectedClose(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
