package memory

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store is an in-process store.KV. It can be switched into a failing mode
// to stand in for an unreachable network store.
type Store struct {
	data    *xsync.MapOf[string, string]
	failing atomic.Bool
	closed  atomic.Bool
}

// New creates an empty store.
func New() *Store {
	return &Store{data: xsync.NewMapOf[string, string]()}
}

// SetFailing makes every subsequent operation fail with store.ErrUnavailable.
func (s *Store) SetFailing(failing bool) {
	s.failing.Store(failing)
}

// Get implements store.KV.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := s.data.Load(key)
	return v, ok, nil
}

// Set implements store.KV.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.data.Store(key, value)
	return nil
}

// Close implements store.KV.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// Len reports the number of stored keys.
func (s *Store) Len() int {
	return s.data.Size()
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failing.Load() || s.closed.Load() {
		return store.ErrUnavailable
	}
	return nil
}
