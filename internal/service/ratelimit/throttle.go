package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum spacing between consecutive outbound calls.
// With a burst of one the limiter never lets two calls through closer than
// interval apart, which is the provider's contract.
type Throttle struct {
	lim *rate.Limiter
}

// NewThrottle returns a throttle spacing calls interval apart. A zero interval disables it.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call may go out or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.lim.Wait(ctx)
}
