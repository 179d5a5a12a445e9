package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore implements store.KV on top of a Redis server.
type RedisStore struct {
	rdb *goredis.Client
}

// Options tunes the underlying client.
type Options struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// New creates a Redis-backed store from a redis:// or rediss:// URL.
// The connection is established lazily, so an unreachable server does not fail startup.
func New(url string, opts Options) (*RedisStore, error) {
	ro, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	// Retries are owned by the membership adapter.
	ro.MaxRetries = -1
	if opts.DialTimeout > 0 {
		ro.DialTimeout = opts.DialTimeout
	}
	if opts.IOTimeout > 0 {
		ro.ReadTimeout = opts.IOTimeout
		ro.WriteTimeout = opts.IOTimeout
	}

	return &RedisStore{rdb: goredis.NewClient(ro)}, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get implements store.KV.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set implements store.KV. Values never expire.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close implements store.KV.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
