package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum wall-clock interval between outbound API
// calls. A single instance is shared by every engine in the process so
// the spacing holds globally no matter how many strategies run.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// New creates a Limiter with the given minimum interval between calls.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until at least the configured interval has elapsed since
// the previous call returned, then records the new call time. Concurrent
// callers serialize on the recorded timestamp; ordering beyond
// FIFO-by-lock-acquisition is not guaranteed. Returns early with the
// context error if ctx is canceled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wait := l.interval - time.Since(l.last); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.last = time.Now()
	return nil
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
