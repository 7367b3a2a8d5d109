// Package ratelimit provides two limiters used at the edge: a sliding
// window limiter for raw authentication attempts per caller, and an
// hour-bucketed per-user request limiter with memory and Redis backends.
package ratelimit

import (
	"sync"
	"time"
)

// AttemptLimiter throttles authentication attempts per key using a sliding
// window. A key is typically the caller's client IP.
type AttemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string][]time.Time
	maxAttempts int
	window      time.Duration

	now func() time.Time
}

// NewAttemptLimiter creates a limiter allowing maxAttempts per window.
func NewAttemptLimiter(maxAttempts int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		attempts:    make(map[string][]time.Time),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// Allow reports whether the key may attempt authentication. Expired
// attempts are evicted before counting.
func (l *AttemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key)) < l.maxAttempts
}

// RecordFailure records a failed authentication attempt for the key.
// Successful attempts are not recorded, so legitimate callers never
// accumulate towards the limit.
func (l *AttemptLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[key] = append(l.prune(key), l.now())
}

// Remaining returns how many attempts the key has left in the window.
func (l *AttemptLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.maxAttempts - len(l.prune(key))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetTime returns when the oldest recorded attempt leaves the window,
// or the zero time if no attempts are recorded.
func (l *AttemptLimiter) ResetTime(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	recorded := l.prune(key)
	if len(recorded) == 0 {
		return time.Time{}
	}
	return recorded[0].Add(l.window)
}

// prune drops attempts older than the window. Callers must hold the lock.
func (l *AttemptLimiter) prune(key string) []time.Time {
	cutoff := l.now().Add(-l.window)
	recorded := l.attempts[key]
	kept := recorded[:0]
	for _, at := range recorded {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, key)
		return nil
	}
	l.attempts[key] = kept
	return kept
}
