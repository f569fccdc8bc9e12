package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter on Redis (INCR + EXPIRE). Used to slow
// down credential stuffing against the login endpoints.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	log    *slog.Logger
}

func New(rdb *redis.Client, limit int, window time.Duration, log *slog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		log:    log,
	}
}

// Allow reports whether another attempt is permitted for the key. Fails open
// on Redis errors: a rate limiter outage must not lock everyone out.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true
	}

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter redis error", "key", key, "err", err)
		return true
	}

	count := incr.Val()

	if count > int64(l.limit) {
		l.log.Warn("rate limit exceeded", "key", key, "count", count, "limit", l.limit)
		return false
	}

	return true
}

// RetryAfter is the worst-case wait before the window resets.
func (l *Limiter) RetryAfter() time.Duration {
	return l.window
}
