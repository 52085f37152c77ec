package domain

import "time"

// Cache is a disposable derived view. Invalidate removes the exact key and every key
// that starts with it, and returns how many entries were removed.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Invalidate(keyOrPrefix string) int
}
