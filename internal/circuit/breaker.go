// Package circuit implements a circuit breaker guarding the downstream
// orchestration gateway.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// Closed allows all requests.
	Closed State = iota
	// Open rejects all requests until the recovery timeout elapses.
	Open
	// HalfOpen allows trial requests to probe recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker counts consecutive failures and trips open at a threshold. The
// transition from Open to HalfOpen happens on demand when CanExecute is
// called after the recovery timeout, not on a background timer.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	threshold       int
	recoveryTimeout time.Duration
	lastFailure     time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker with the given failure threshold and
// recovery timeout.
func NewBreaker(threshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		state:           Closed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
	}
}

// CanExecute reports whether a request may proceed. When the breaker is
// open and the recovery timeout has elapsed it moves to half open and
// allows the request as a probe.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the breaker to closed from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = Closed
}

// RecordFailure counts a failure and opens the breaker once the threshold
// is reached. A failure while half open reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()
	if b.state == HalfOpen || b.failureCount >= b.threshold {
		b.state = Open
	}
}

// Snapshot returns the current state and failure count.
func (b *Breaker) Snapshot() (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount
}
