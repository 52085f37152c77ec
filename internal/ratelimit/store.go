package ratelimit

import (
	"context"
	"time"
)

// Store counts requests per key in fixed windows. Implementations must be safe for concurrent use.
type Store interface {
	// Increment bumps the counter for key, creating a window of the given length on
	// first use, and returns the new count and the time until the window resets.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}
