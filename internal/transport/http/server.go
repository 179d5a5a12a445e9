package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Relay is the part of core.Hub the transport depends on.
type Relay interface {
	RegisterClient(c *core.Client)
	UnregisterClient(c *core.Client)
	Dispatch(c *core.Client, cmd *core.Command)
	Participants(ctx context.Context, room string) ([]string, error)
}

// NewServer builds an HTTP server with the relay routes. The websocket
// endpoint is mounted on the mux directly: gin's writer cannot be hijacked
// once the upgrade response is written.
func NewServer(relay Relay, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(relay, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler routes /ws to the websocket handler and everything else to gin.
func NewHandler(relay Relay, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(relay, cfg.Relay, logger))
	mux.Handle("/", NewRouter(relay, logger))
	return mux
}

// NewRouter registers the REST routes on a gin engine.
func NewRouter(relay Relay, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	rooms := NewRoomHandlers(relay, logger)
	api := router.Group("/api")
	api.GET("/rooms/:room/participants", rooms.ListParticipants)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
