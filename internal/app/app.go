package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/membership"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
	"github.com/vovakirdan/wirechat-relay/internal/store/redis"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together store, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	pool            *membership.Pool
	store           store.KV
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	kv, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	adapter := membership.NewAdapter(kv, membership.Options{
		KeyPrefix:   cfg.Store.KeyPrefix,
		OpTimeout:   cfg.Store.OpTimeout,
		MaxAttempts: cfg.Store.MaxAttempts,
		RetryStep:   cfg.Store.RetryStep,
		RetryMax:    cfg.Store.RetryMax,
	}, logger)
	pool := membership.NewPool(cfg.Workers.Shards, cfg.Workers.QueueSize)

	hubOpts := core.DefaultOptions()
	hubOpts.IncludeSender = cfg.Relay.IncludeSender
	hub := core.NewHub(adapter, pool, hubOpts, logger)

	server := transporthttp.NewServer(hub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		pool:            pool,
		store:           kv,
		log:             logger,
	}, nil
}

func openStore(cfg *config.Config, logger *zerolog.Logger) (store.KV, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		st, err := redis.New(cfg.Store.RedisURL, redis.Options{
			DialTimeout: cfg.Store.OpTimeout,
			IOTimeout:   cfg.Store.OpTimeout,
		})
		if err != nil {
			return nil, err
		}
		// An unreachable store is not fatal: membership simply is not restored.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.OpTimeout)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("membership store unreachable at startup")
		} else {
			logger.Info().Msg("membership store connected")
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("db_path", cfg.Store.SQLitePath).Msg("database initialized")
		return st, nil
	case config.DriverMemory:
		logger.Warn().Msg("using in-memory membership store; rooms are lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(stopHub, hubDone)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		shutdownErr := a.server.Shutdown(shutdownCtx)

		a.cleanup(stopHub, hubDone)
		if shutdownErr != nil {
			return shutdownErr
		}
		return <-serverErr
	}
}

// cleanup stops the hub (closing live connections), drains pending store
// calls and closes the store connection.
func (a *App) cleanup(stopHub context.CancelFunc, hubDone <-chan struct{}) {
	stopHub()
	<-hubDone

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.pool.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("membership workers did not drain")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
