package ratelimit

import (
	"context"
	"fmt"

	"github.com/meshai-dev/mcp-edge/internal/config"
)

// NewUserLimiter constructs the hourly limiter selected by the
// configuration. When rate limiting is disabled a no-op limiter is
// returned so callers need no special casing.
func NewUserLimiter(ctx context.Context, cfg config.RateLimitConfig) (UserLimiter, error) {
	if !cfg.Enabled {
		return NoopUserLimiter{}, nil
	}
	switch cfg.Provider {
	case "memory":
		return NewMemoryUserLimiter(), nil
	case "redis":
		return NewRedisUserLimiter(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown rate limit provider %q", cfg.Provider)
	}
}
