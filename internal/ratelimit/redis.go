package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically increments the counter for the current
// window and sets its expiry on first use. The key itself encodes the
// window index, so counters from old windows age out on their own.
// KEYS[1] = counter key for (tenant, window index)
// ARGV[1] = key expiry in milliseconds
// Returns: the request count within the current window.
var fixedWindowScript = redis.NewScript(`
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return count
`)

const (
	redisRequestPrefix = "ratelimit:rpm:"
	redisTokenPrefix   = "ratelimit:tpm:"
)

// RedisLimiter is a fixed-window rate limiter shared across gateway
// instances. Unlike the in-memory Limiter, windows are clock-aligned
// (window N covers [N*60s, (N+1)*60s)) so every instance agrees on the
// window boundary.
type RedisLimiter struct {
	rdb               *redis.Client
	requestsPerMinute int
}

// NewRedisLimiter creates a RedisLimiter. requestsPerMinute must be > 0.
func NewRedisLimiter(rdb *redis.Client, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, requestsPerMinute: requestsPerMinute}
}

// Check decides whether the keyed caller may proceed within the current
// clock-aligned window. When Redis is unreachable the request is allowed
// (graceful degradation).
func (r *RedisLimiter) Check(ctx context.Context, key string) Decision {
	nowMs := time.Now().UnixMilli()
	windowMs := Window.Milliseconds()
	idx := nowMs / windowMs

	counterKey := fmt.Sprintf("%s%s:%d", redisRequestPrefix, key, idx)
	count, err := fixedWindowScript.Run(ctx, r.rdb,
		[]string{counterKey},
		staleAfter.Milliseconds(),
	).Int()
	if err != nil {
		// Redis unavailable — allow the request.
		return Decision{Allowed: true}
	}

	if count > r.requestsPerMinute {
		return Decision{
			Allowed:      false,
			RetryAfterMs: (idx+1)*windowMs - nowMs,
		}
	}
	return Decision{Allowed: true}
}

// RecordTokens adds n to the key's token counter for the current window.
// Informational only; failures are ignored.
func (r *RedisLimiter) RecordTokens(ctx context.Context, key string, n int64) {
	idx := time.Now().UnixMilli() / Window.Milliseconds()
	counterKey := fmt.Sprintf("%s%s:%d", redisTokenPrefix, key, idx)

	pipe := r.rdb.Pipeline()
	pipe.IncrBy(ctx, counterKey, n)
	pipe.PExpire(ctx, counterKey, staleAfter)
	_, _ = pipe.Exec(ctx)
}
