package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Info describes the caller's standing against the hourly limit, used to
// populate rate limit response headers.
type Info struct {
	Limit     int
	Remaining int
	ResetTime time.Time
	Window    int // seconds
}

const windowSeconds = 3600

// UserLimiter enforces a per-user hourly request budget, counted per
// (user, resource) pair.
type UserLimiter interface {
	Allow(ctx context.Context, userID, resource string, limit int) (bool, Info, error)
	Close() error
}

// MemoryUserLimiter is the in-process hourly limiter. Requests are counted
// in hour buckets keyed by (user, resource); stale buckets are pruned as
// they are touched.
type MemoryUserLimiter struct {
	mu      sync.Mutex
	buckets map[string]map[int64]int

	now func() time.Time
}

// NewMemoryUserLimiter creates an in-process hourly limiter.
func NewMemoryUserLimiter() *MemoryUserLimiter {
	return &MemoryUserLimiter{
		buckets: make(map[string]map[int64]int),
		now:     time.Now,
	}
}

// Allow counts the request against the current hour bucket and reports
// whether the caller is within the limit. The request is only counted when
// allowed.
func (l *MemoryUserLimiter) Allow(_ context.Context, userID, resource string, limit int) (bool, Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hour := now.Unix() / windowSeconds
	key := userID + ":" + resource

	counts := l.buckets[key]
	if counts == nil {
		counts = make(map[int64]int)
		l.buckets[key] = counts
	}
	for h := range counts {
		if h < hour {
			delete(counts, h)
		}
	}

	info := Info{
		Limit:     limit,
		ResetTime: time.Unix((hour+1)*windowSeconds, 0),
		Window:    windowSeconds,
	}

	count := counts[hour]
	if count >= limit {
		info.Remaining = 0
		return false, info, nil
	}
	counts[hour] = count + 1
	info.Remaining = limit - count - 1
	return true, info, nil
}

// Close releases limiter resources.
func (l *MemoryUserLimiter) Close() error { return nil }

// NoopUserLimiter always allows. Used when rate limiting is disabled.
type NoopUserLimiter struct{}

// Allow always reports the request as allowed with a full budget.
func (NoopUserLimiter) Allow(_ context.Context, _, _ string, limit int) (bool, Info, error) {
	now := time.Now()
	hour := now.Unix() / windowSeconds
	return true, Info{
		Limit:     limit,
		Remaining: limit,
		ResetTime: time.Unix((hour+1)*windowSeconds, 0),
		Window:    windowSeconds,
	}, nil
}

// Close releases limiter resources.
func (NoopUserLimiter) Close() error { return nil }

func bucketKey(userID, resource string, hour int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", userID, resource, hour)
}
