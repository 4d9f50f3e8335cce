package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow prunes, counts and records in one script so the check and
// the increment cannot interleave across instances.
//
// KEYS[1] window key; ARGV: now_ms, window_ms, limit, member.
// Returns {allowed, used, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, used, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, used + 1, 0}
`)

// RedisLimiter shares the window across every instance behind the same Redis.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg Config, prefix string) *RedisLimiter {
	if cfg.MaxAttempts <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	if prefix == "" {
		prefix = "ratelimit:login"
	}
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

func (l *RedisLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now().UnixMilli()
	reply, err := slidingWindow.Run(ctx, l.client,
		[]string{l.key(key)},
		now, l.cfg.Window.Milliseconds(), l.cfg.MaxAttempts, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	res, err := int64s(reply)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     l.cfg.MaxAttempts,
		Remaining: remaining(l.cfg.MaxAttempts, int(res[1])),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity.
func (l *RedisLimiter) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func int64s(reply []interface{}) ([]int64, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", reply)
	}
	out := make([]int64, len(reply))
	for i, v := range reply {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("rate limit script: unexpected value %T at %d", v, i)
		}
		out[i] = n
	}
	return out, nil
}
