package http

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter caps inbound envelopes per connection. A zero limit disables it.
type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter allows perMinute envelopes per minute with a burst of the
// same size, refilling evenly across the minute.
func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return &rateLimiter{}
	}
	every := time.Minute / time.Duration(perMinute)
	return &rateLimiter{limiter: rate.NewLimiter(rate.Every(every), perMinute)}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limiter == nil {
		return true
	}
	return r.limiter.Allow()
}
