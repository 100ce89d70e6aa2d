package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out repeated work such as watch-mode re-runs.
type Limiter struct {
	inner *rate.Limiter
}

// NewIntervalLimiter allows one run per interval. A non-positive interval
// never blocks.
func NewIntervalLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{inner: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{inner: rate.NewLimiter(rate.Every(interval), 1)}
}

// Ready reports whether a run may start now, consuming the slot if so.
func (l *Limiter) Ready() bool {
	return l.inner.Allow()
}

// Wait blocks until the next run may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.inner.Wait(ctx)
}
