package membership

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/memory"
)

func fastOptions() Options {
	return Options{
		OpTimeout:   time.Second,
		MaxAttempts: 3,
		RetryStep:   time.Millisecond,
		RetryMax:    5 * time.Millisecond,
	}
}

// flakyKV fails the first n calls, then delegates.
type flakyKV struct {
	store.KV
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return "", false, errors.New("connection reset")
	}
	return f.KV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.KV.Set(ctx, key, value)
}

// blockingKV never answers until ctx is done.
type blockingKV struct{ store.KV }

func (blockingKV) Get(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

func (blockingKV) Set(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAdapterRoundTrip(t *testing.T) {
	kv := memory.New()
	a := NewAdapter(kv, fastOptions(), nil)
	ctx := context.Background()

	if _, ok := a.GetRoomFor(ctx, "u1"); ok {
		t.Fatal("expected no room before join")
	}
	if !a.SetRoomFor(ctx, "u1", "r1") {
		t.Fatal("set failed")
	}
	room, ok := a.GetRoomFor(ctx, "u1")
	if !ok || room != "r1" {
		t.Fatalf("got %q ok=%v", room, ok)
	}

	if v, found, _ := kv.Get(ctx, "user:u1"); !found || v != "r1" {
		t.Fatalf("expected user:u1 key, got %q found=%v", v, found)
	}
}

func TestAdapterIdempotentJoin(t *testing.T) {
	kv := memory.New()
	a := NewAdapter(kv, fastOptions(), nil)
	ctx := context.Background()

	a.SetRoomFor(ctx, "u1", "r1")
	a.SetRoomFor(ctx, "u1", "r1")

	if kv.Len() != 1 {
		t.Fatalf("expected a single record, got %d", kv.Len())
	}
	if room, _ := a.GetRoomFor(ctx, "u1"); room != "r1" {
		t.Fatalf("room = %q", room)
	}
}

func TestAdapterRetriesTransientFailures(t *testing.T) {
	kv := &flakyKV{KV: memory.New()}
	kv.failures.Store(2)
	a := NewAdapter(kv, fastOptions(), nil)

	if !a.SetRoomFor(context.Background(), "u1", "r1") {
		t.Fatal("expected success on third attempt")
	}
	if got := kv.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestAdapterGivesUpAfterMaxAttempts(t *testing.T) {
	kv := &flakyKV{KV: memory.New()}
	kv.failures.Store(100)
	a := NewAdapter(kv, fastOptions(), nil)

	if _, ok := a.GetRoomFor(context.Background(), "u1"); ok {
		t.Fatal("expected soft failure")
	}
	if got := kv.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestAdapterUnavailableStore(t *testing.T) {
	kv := memory.New()
	kv.SetFailing(true)
	a := NewAdapter(kv, fastOptions(), nil)

	if a.SetRoomFor(context.Background(), "u1", "r1") {
		t.Fatal("expected write to be reported as not persisted")
	}
	if _, ok := a.GetRoomFor(context.Background(), "u1"); ok {
		t.Fatal("expected no restored room")
	}
}

func TestAdapterTimeout(t *testing.T) {
	opts := fastOptions()
	opts.OpTimeout = 50 * time.Millisecond
	a := NewAdapter(blockingKV{}, opts, nil)

	start := time.Now()
	if _, ok := a.GetRoomFor(context.Background(), "u1"); ok {
		t.Fatal("expected timeout to degrade to not restored")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not honoured, took %v", elapsed)
	}
}

func TestLinearBackOffCapped(t *testing.T) {
	b := &linearBackOff{step: 50 * time.Millisecond, max: 2 * time.Second}
	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("step %d = %v, want %v", i, got, w)
		}
	}

	for range 100 {
		b.NextBackOff()
	}
	if got := b.NextBackOff(); got != 2*time.Second {
		t.Fatalf("expected cap of 2s, got %v", got)
	}

	b.Reset()
	if got := b.NextBackOff(); got != 50*time.Millisecond {
		t.Fatalf("after reset got %v", got)
	}
}
