// Package ratelimit paces calls to the external profile source.
package ratelimit

import (
	"context"
	"time"
)

// Limiter enforces a minimum spacing between successive calls inside one
// sequential crawl loop. It is not safe for concurrent use; create one per
// job run. Interactive batch analyses do not go through a Limiter at all,
// their throughput is bounded by the worker pool instead.
type Limiter struct {
	interval time.Duration
	last     time.Time
}

func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until the spacing since the previous call has elapsed or ctx
// is done. The first call never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval > 0 && !l.last.IsZero() {
		if wait := l.interval - time.Since(l.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	l.last = time.Now()
	return nil
}
