package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func TestFailingMode(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	s.SetFailing(true)
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if err := s.Set(ctx, "k", "w"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	s.SetFailing(false)
	v, found, err := s.Get(ctx, "k")
	if err != nil || !found || v != "v" {
		t.Fatalf("got %q found=%v err=%v", v, found, err)
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user:%d", i%4)
			for j := 0; j < 100; j++ {
				if err := s.Set(ctx, key, fmt.Sprintf("room-%d", j)); err != nil {
					t.Errorf("set: %v", err)
					return
				}
				if _, found, err := s.Get(ctx, key); err != nil || !found {
					t.Errorf("get %s: found=%v err=%v", key, found, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 4 {
		t.Fatalf("len = %d, want 4", s.Len())
	}
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected unavailable after close, got %v", err)
	}
}
