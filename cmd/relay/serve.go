package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE:  runServe,
	}

	def := config.Default()
	flags := cmd.Flags()
	flags.String("addr", def.Addr, "HTTP listen address")
	flags.Duration("read-header-timeout", def.ReadHeaderTimeout, "HTTP read header timeout")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown timeout")
	flags.String("log-level", def.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", def.LogFormat, "log format (console, json)")
	flags.String("store", def.Store.Driver, "membership store driver (redis, sqlite, memory)")
	flags.String("redis-url", def.Store.RedisURL, "redis connection url")
	flags.String("sqlite-path", def.Store.SQLitePath, "sqlite database path")
	flags.Bool("include-sender", def.Relay.IncludeSender, "deliver chat messages back to their sender")
	flags.Bool("report-errors", def.Relay.ReportErrors, "answer rejected envelopes with an error envelope")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	overrideString(cmd, "addr", &cfg.Addr)
	overrideString(cmd, "log-level", &cfg.LogLevel)
	overrideString(cmd, "log-format", &cfg.LogFormat)
	overrideString(cmd, "store", &cfg.Store.Driver)
	overrideString(cmd, "redis-url", &cfg.Store.RedisURL)
	overrideString(cmd, "sqlite-path", &cfg.Store.SQLitePath)
	if flags.Changed("read-header-timeout") {
		cfg.ReadHeaderTimeout, _ = flags.GetDuration("read-header-timeout")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout, _ = flags.GetDuration("shutdown-timeout")
	}
	if flags.Changed("include-sender") {
		cfg.Relay.IncludeSender, _ = flags.GetBool("include-sender")
	}
	if flags.Changed("report-errors") {
		cfg.Relay.ReportErrors, _ = flags.GetBool("report-errors")
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("store", cfg.Store.Driver).
		Bool("include_sender", cfg.Relay.IncludeSender).
		Msg("starting relay")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("relay stopped")
	return nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	bootstrap := log.New("info", "console")
	cfg, _, err := config.Load(bootstrap, path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

// contextOrBackground keeps cobra commands usable when executed without a context.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
