package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusid/oauthd/domain"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a mutex-serialized, in-process fixed-window counter.
// Concurrent checks against the same identifier cannot bypass the count.
// This is adequate for a single-process deployment; a multi-instance
// deployment should use the Redis-backed limiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   Clock

	sweepInterval time.Duration
	done          chan struct{}
}

// NewMemoryLimiter creates an in-memory limiter. A background sweep drops
// windows that have been idle longer than sweepInterval.
func NewMemoryLimiter(clock Clock, sweepInterval time.Duration) *MemoryLimiter {
	if clock == nil {
		clock = SystemClock()
	}
	l := &MemoryLimiter{
		windows:       make(map[string]*window),
		clock:         clock,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}
	if sweepInterval > 0 {
		go l.sweepLoop()
	}
	return l
}

// Check implements Limiter.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, policy domain.RateLimitPolicy) (Result, error) {
	if !policy.Enabled {
		return Result{Allowed: true, Remaining: policy.MaxRequests, Limit: policy.MaxRequests}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.start.Add(policy.Window)) {
		w = &window{start: now}
		l.windows[identifier] = w
	}

	resetAt := w.start.Add(policy.Window)
	if w.count >= policy.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt, Limit: policy.MaxRequests}, nil
	}

	w.count++
	return Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - w.count,
		ResetAt:   resetAt,
		Limit:     policy.MaxRequests,
	}, nil
}

// Record implements Limiter. The memory limiter counts at Check time, so
// Record is a no-op kept for contract symmetry with distributed stores.
func (l *MemoryLimiter) Record(context.Context, string, bool, domain.RateLimitPolicy) error {
	return nil
}

// Close stops the background sweep.
func (l *MemoryLimiter) Close() {
	close(l.done)
}

func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-l.sweepInterval)
	for id, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, id)
		}
	}
}
