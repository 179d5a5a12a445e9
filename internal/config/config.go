package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds relay configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	Relay   RelayConfig   `mapstructure:"relay" yaml:"relay"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
}

// RelayConfig controls dispatch behaviour.
type RelayConfig struct {
	IncludeSender      bool  `mapstructure:"include_sender" yaml:"include_sender"`
	ReportErrors       bool  `mapstructure:"report_errors" yaml:"report_errors"`
	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	EventBuffer        int   `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// StoreConfig selects and tunes the durable membership store.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url"`
	SQLitePath  string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	KeyPrefix   string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	OpTimeout   time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryStep   time.Duration `mapstructure:"retry_step" yaml:"retry_step"`
	RetryMax    time.Duration `mapstructure:"retry_max" yaml:"retry_max"`
}

// WorkersConfig sizes the pool that runs store calls off the dispatch path.
type WorkersConfig struct {
	Shards    int `mapstructure:"shards" yaml:"shards"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	URL                  string        `mapstructure:"url" yaml:"url"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base" yaml:"reconnect_base"`
	ReconnectMax         time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Relay: RelayConfig{
			IncludeSender:      true,
			ReportErrors:       false,
			MaxMessageBytes:    64 << 10,
			RateLimitPerMinute: 0,
			EventBuffer:        32,
		},
		Store: StoreConfig{
			Driver:      DriverRedis,
			RedisURL:    "redis://localhost:6379/0",
			SQLitePath:  "relay.db",
			KeyPrefix:   "user:",
			OpTimeout:   3 * time.Second,
			MaxAttempts: 3,
			RetryStep:   50 * time.Millisecond,
			RetryMax:    2 * time.Second,
		},
		Workers: WorkersConfig{
			Shards:    8,
			QueueSize: 256,
		},
		Client: ClientConfig{
			URL:                  "ws://localhost:8080/ws",
			MaxReconnectAttempts: 5,
			ReconnectBase:        time.Second,
			ReconnectMax:         30 * time.Second,
		},
	}
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for driver %q", c.Store.Driver)
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Workers.Shards <= 0 || c.Workers.QueueSize <= 0 {
		return fmt.Errorf("workers.shards and workers.queue_size must be positive")
	}
	if c.Relay.MaxMessageBytes <= 0 {
		return fmt.Errorf("relay.max_message_bytes must be positive")
	}
	if c.Client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("client.max_reconnect_attempts must not be negative")
	}
	return nil
}
