package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	cfg.Store.Driver = config.DriverMemory
	return cfg
}

func TestOpenStoreDrivers(t *testing.T) {
	logger := zerolog.Nop()
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"memory", func(c *config.Config) { c.Store.Driver = config.DriverMemory }},
		{"sqlite", func(c *config.Config) {
			c.Store.Driver = config.DriverSQLite
			c.Store.SQLitePath = filepath.Join(t.TempDir(), "relay.db")
		}},
		{"redis", func(c *config.Config) {
			c.Store.Driver = config.DriverRedis
			c.Store.RedisURL = "redis://" + mr.Addr()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)

			kv, err := openStore(&cfg, &logger)
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			defer kv.Close()

			ctx := context.Background()
			if err := kv.Set(ctx, "user:u1", "r1"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if v, found, err := kv.Get(ctx, "user:u1"); err != nil || !found || v != "r1" {
				t.Fatalf("get = %q %v %v", v, found, err)
			}
		})
	}
}

func TestOpenStoreUnreachableRedisIsNotFatal(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.RedisURL = "redis://127.0.0.1:1"
	cfg.Store.OpTimeout = 50 * time.Millisecond

	kv, err := openStore(&cfg, &logger)
	if err != nil {
		t.Fatalf("unreachable redis should not fail startup: %v", err)
	}
	kv.Close()
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.Store.Driver = "etcd"

	if _, err := New(&cfg, &logger); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	application, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}
