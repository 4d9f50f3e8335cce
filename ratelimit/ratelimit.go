// Package ratelimit bounds login attempts per key within a sliding window.
//
// Allow both checks and records an attempt in one atomic step, so concurrent
// requests at the boundary cannot slip past the limit. A successful login
// should Reset its key; failed attempts stay in the window until they age out.
package ratelimit

import (
	"context"
	"time"
)

// Config is the window shape shared by every key.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultConfig allows 5 attempts per 15 minutes.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Window: 15 * time.Minute}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is implemented by MemoryLimiter and RedisLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
