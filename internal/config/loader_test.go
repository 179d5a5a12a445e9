package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %s", resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Store.Driver != DriverRedis || !cfg.Relay.IncludeSender {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Client.MaxReconnectAttempts != 5 {
		t.Fatalf("max reconnect attempts = %d", cfg.Client.MaxReconnectAttempts)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
addr: ":9090"
relay:
  include_sender: false
store:
  driver: sqlite
  sqlite_path: /tmp/relay.db
  op_timeout: 1s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RELAY_STORE_DRIVER", "memory")
	t.Setenv("RELAY_WORKERS_SHARDS", "2")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %s", cfg.Addr)
	}
	if cfg.Relay.IncludeSender {
		t.Fatal("include_sender should come from file")
	}
	if cfg.Store.Driver != DriverMemory {
		t.Fatalf("driver = %s, env should win", cfg.Store.Driver)
	}
	if cfg.Store.OpTimeout != time.Second {
		t.Fatalf("op_timeout = %v", cfg.Store.OpTimeout)
	}
	if cfg.Workers.Shards != 2 {
		t.Fatalf("shards = %d", cfg.Workers.Shards)
	}
	if cfg.Workers.QueueSize != 256 {
		t.Fatalf("queue_size default lost: %d", cfg.Workers.QueueSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory driver", func(c *Config) { c.Store.Driver = DriverMemory }, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, true},
		{"sqlite without path", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.SQLitePath = "" }, true},
		{"zero shards", func(c *Config) { c.Workers.Shards = 0 }, true},
		{"negative attempts", func(c *Config) { c.Client.MaxReconnectAttempts = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
