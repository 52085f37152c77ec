package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitStore implements ratelimit.Store with INCR and EXPIRE NX, so every instance
// shares one window per key.
type RateLimitStore struct {
	rdb goredis.Cmdable
}

func NewRateLimitStore(rdb goredis.Cmdable) *RateLimitStore {
	return &RateLimitStore{rdb: rdb}
}

func (s *RateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis increment failed: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		ttl = window
	}
	return incr.Val(), ttl, nil
}
