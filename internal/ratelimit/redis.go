package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meshai-dev/mcp-edge/internal/config"
	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
)

// RedisUserLimiter is the Redis-backed hourly limiter, used when multiple
// edge instances must share one budget per user. Counters live in hour
// bucket keys with a two hour expiry so stale buckets clean themselves up.
type RedisUserLimiter struct {
	client *redis.Client

	now func() time.Time
}

// NewRedisUserLimiter connects to Redis and verifies the connection.
func NewRedisUserLimiter(ctx context.Context, cfg config.RedisConfig) (*RedisUserLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, customerrors.WrapWithType(err, customerrors.TypeUnavailable, "failed to connect to redis at "+cfg.Addr).
			WithComponent("ratelimit")
	}
	return &RedisUserLimiter{client: client, now: time.Now}, nil
}

// NewRedisUserLimiterFromClient wraps an existing client, used by tests.
func NewRedisUserLimiterFromClient(client *redis.Client) *RedisUserLimiter {
	return &RedisUserLimiter{client: client, now: time.Now}
}

// Allow increments the current hour bucket and reports whether the caller
// is within the limit.
func (l *RedisUserLimiter) Allow(ctx context.Context, userID, resource string, limit int) (bool, Info, error) {
	hour := l.now().Unix() / windowSeconds
	key := bucketKey(userID, resource, hour)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, Info{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := int(incr.Val())
	info := Info{
		Limit:     limit,
		ResetTime: time.Unix((hour+1)*windowSeconds, 0),
		Window:    windowSeconds,
	}
	if count > limit {
		info.Remaining = 0
		return false, info, nil
	}
	info.Remaining = limit - count
	return true, info, nil
}

// Close closes the underlying Redis client.
func (l *RedisUserLimiter) Close() error {
	return l.client.Close()
}
