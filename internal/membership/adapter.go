package membership

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// DefaultKeyPrefix namespaces membership records in the shared store.
const DefaultKeyPrefix = "user:"

// Options controls retry and timeout behaviour of the adapter.
type Options struct {
	KeyPrefix   string
	OpTimeout   time.Duration
	MaxAttempts int
	RetryStep   time.Duration
	RetryMax    time.Duration
}

// DefaultOptions mirrors the relay defaults: 3 attempts, 50ms linear steps capped at 2s.
func DefaultOptions() Options {
	return Options{
		KeyPrefix:   DefaultKeyPrefix,
		OpTimeout:   3 * time.Second,
		MaxAttempts: 3,
		RetryStep:   50 * time.Millisecond,
		RetryMax:    2 * time.Second,
	}
}

// Adapter persists the participant → room mapping with best-effort semantics.
// Failures are logged and reported as "not restored"/"not persisted", never returned as errors.
type Adapter struct {
	kv   store.KV
	opts Options
	log  *zerolog.Logger
}

// NewAdapter wraps kv. Zero-valued options fall back to DefaultOptions.
func NewAdapter(kv store.KV, opts Options, logger *zerolog.Logger) *Adapter {
	def := DefaultOptions()
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = def.KeyPrefix
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = def.OpTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = def.RetryStep
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = def.RetryMax
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Adapter{kv: kv, opts: opts, log: logger}
}

type lookup struct {
	room  string
	found bool
}

// GetRoomFor returns the last room persisted for participant.
// ok is false when nothing is stored or the store could not be reached in time.
func (a *Adapter) GetRoomFor(ctx context.Context, participant string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.OpTimeout)
	defer cancel()

	key := a.key(participant)
	res, err := backoff.Retry(ctx, func() (lookup, error) {
		room, found, err := a.kv.Get(ctx, key)
		if err != nil {
			return lookup{}, err
		}
		return lookup{room: room, found: found}, nil
	}, a.retryOptions("get", participant)...)
	if err != nil {
		a.log.Warn().Err(err).Str("participant", participant).Msg("membership not restored")
		return "", false
	}
	if !res.found || res.room == "" {
		return "", false
	}
	return res.room, true
}

// SetRoomFor records room as participant's current room (last write wins).
// It reports whether the write was acknowledged by the store.
func (a *Adapter) SetRoomFor(ctx context.Context, participant, room string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.opts.OpTimeout)
	defer cancel()

	key := a.key(participant)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, a.kv.Set(ctx, key, room)
	}, a.retryOptions("set", participant)...)
	if err != nil {
		a.log.Warn().Err(err).Str("participant", participant).Str("room", room).Msg("membership not persisted")
		return false
	}
	return true
}

func (a *Adapter) key(participant string) string {
	return a.opts.KeyPrefix + participant
}

func (a *Adapter) retryOptions(op, participant string) []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(&linearBackOff{step: a.opts.RetryStep, max: a.opts.RetryMax}),
		backoff.WithMaxTries(uint(a.opts.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.log.Debug().Err(err).
				Str("op", op).
				Str("participant", participant).
				Dur("retry_in", next).
				Msg("membership store retry")
		}),
	}
}

// linearBackOff waits step, 2*step, 3*step, ... up to max.
type linearBackOff struct {
	step time.Duration
	max  time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	d := time.Duration(b.n) * b.step
	if d > b.max {
		return b.max
	}
	return d
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
