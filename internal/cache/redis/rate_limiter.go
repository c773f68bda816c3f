package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// RateLimiter implements domain.RateLimiter as a fixed-window counter: one
// INCR per request on a key that expires with its window.
type RateLimiter struct {
	c   *Client
	rdb *redis.Client
	now func() time.Time
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, rdb: c.Underlying(), now: time.Now}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)

// Allow counts a request for key and reports whether it is within limit for
// the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 || limit <= 0 {
		return true, nil
	}
	bucket := rl.now().UnixNano() / int64(window)
	k := rl.c.key("ratelimit", key, strconv.FormatInt(bucket, 10))

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}
