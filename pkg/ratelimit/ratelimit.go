package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Lock throttles outgoing requests.
type Lock interface {
	// Lock blocks until a request may be sent and returns the function that
	// releases it.
	Lock(ctx context.Context) func()
}

// limiter is a token bucket. Tokens aren't handed back, so the unlock
// function returned by Lock does nothing.
type limiter struct {
	l *rate.Limiter
}

// New returns a lock that lets one request through every wait duration.
// A zero wait disables throttling.
func New(wait time.Duration) Lock {
	limit := rate.Inf
	if wait > 0 {
		limit = rate.Every(wait)
	}
	return &limiter{l: rate.NewLimiter(limit, 1)}
}

func (r *limiter) Lock(ctx context.Context) func() {
	// A cancelled context makes the caller fail on its own request
	_ = r.l.Wait(ctx)
	return func() {}
}
