package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter caps how many pushes a phone number can receive per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
	Record(ctx context.Context, key string)
}

type RedisRateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter returns a limiter that allows everything when client is
// nil, matching how the server runs without Redis.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) error {
	if l.redis == nil || l.limit <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, rateLimitKey(key)).Int()
	if err != nil && err != redis.Nil {
		log.Printf("[RATELIMIT] Redis unavailable, allowing push: %v", err)
		return nil
	}

	if count >= l.limit {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisRateLimiter) Record(ctx context.Context, key string) {
	if l.redis == nil || l.limit <= 0 {
		return
	}

	k := rateLimitKey(key)
	pipe := l.redis.Pipeline()
	pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[RATELIMIT] Failed to record push for %s: %v", key, err)
	}
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("mpesa:push:ratelimit:%s", key)
}
