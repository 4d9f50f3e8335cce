package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxKeys caps how many distinct keys the in-memory limiter tracks.
const DefaultMaxKeys = 100_000

// MemoryLimiter keeps a timestamp log per key in an expiring LRU, so memory
// stays bounded even when attempts are sprayed across many keys.
type MemoryLimiter struct {
	cfg   Config
	now   func() time.Time
	mu    sync.Mutex
	cache *expirable.LRU[string, []time.Time]
}

func NewMemoryLimiter(cfg Config, maxKeys int) *MemoryLimiter {
	if cfg.MaxAttempts <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &MemoryLimiter{
		cfg:   cfg,
		now:   time.Now,
		cache: expirable.NewLRU[string, []time.Time](maxKeys, nil, cfg.Window),
	}
}

// WithClock replaces the time source. Used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	stamps, _ := l.cache.Get(key)
	live := make([]time.Time, 0, len(stamps)+1)
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.cfg.MaxAttempts {
		l.cache.Add(key, live)
		return Decision{
			Allowed:    false,
			Limit:      l.cfg.MaxAttempts,
			Remaining:  0,
			RetryAfter: live[0].Add(l.cfg.Window).Sub(now),
		}, nil
	}

	live = append(live, now)
	l.cache.Add(key, live)
	return Decision{
		Allowed:   true,
		Limit:     l.cfg.MaxAttempts,
		Remaining: remaining(l.cfg.MaxAttempts, len(live)),
	}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
	return nil
}
