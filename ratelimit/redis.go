package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/nimbusid/oauthd/domain"
)

// RedisLimiter is a fixed-window counter backed by Redis INCR, safe across
// multiple server instances. The first increment of a window sets the key
// expiry to the window length, so the window resets strictly when it
// elapses.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are namespaced under
// prefix.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) key(identifier string) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.prefix, identifier)
}

// Check implements Limiter.
func (l *RedisLimiter) Check(ctx context.Context, identifier string, policy domain.RateLimitPolicy) (Result, error) {
	if !policy.Enabled {
		return Result{Allowed: true, Remaining: policy.MaxRequests, Limit: policy.MaxRequests}, nil
	}

	key := l.key(identifier)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, key, policy.Window).Err(); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to set rate limit window expiry")
		}
	}

	ttl, err := l.client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = policy.Window
	}
	resetAt := time.Now().Add(ttl)

	if count > int64(policy.MaxRequests) {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt, Limit: policy.MaxRequests}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: policy.MaxRequests - int(count),
		ResetAt:   resetAt,
		Limit:     policy.MaxRequests,
	}, nil
}

// Record implements Limiter. Counting happens atomically in Check.
func (l *RedisLimiter) Record(context.Context, string, bool, domain.RateLimitPolicy) error {
	return nil
}
