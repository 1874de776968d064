package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/redis"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	// An unreachable limiter admits the request.
	_, err := pipe.Exec(ctx)
	if err != nil {
		observability.RateLimitUnavailable.Inc()
		return true
	}

	allowed := incr.Val() <= int64(rate)
	if !allowed {
		observability.RateLimitExceeded.Inc()
	}
	return allowed
}
