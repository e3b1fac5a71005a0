package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "registry:rl:"

// RateLimiter is a fixed-window counter shared by every server instance.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimiter returns a limiter backed by client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow counts one request for key in the current window and reports
// whether it is within limit. When it is not, retryAfter is the time left
// in the window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	now := l.now()
	slot := now.UnixNano() / int64(window)
	redisKey := rateKeyPrefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}
	windowEnd := time.Unix(0, (slot+1)*int64(window))
	return false, windowEnd.Sub(now), nil
}
