// Package cache provides an in-process TTL cache with prefix invalidation.
package cache

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is a TTL cache. Expired entries are never returned: Get treats them as a
// miss and evicts them, and StartEvictionTimer sweeps the rest periodically.
// Invalidate scans keys linearly, which holds for thousands of entries.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	clock   clockwork.Clock
	metrics *metrics.CacheMetrics
}

func NewMemory[V any](clock clockwork.Clock, m *metrics.CacheMetrics) *Memory[V] {
	return &Memory[V]{
		entries: make(map[string]entry[V]),
		clock:   clock,
		metrics: m,
	}
}

func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.clock.Now().Before(e.expiresAt) {
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return e.value, true
	}

	if ok {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.entries, key)
			c.recordEvictions(1)
		}
		c.mu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}
	var zero V
	return zero, false
}

// Set stores value for ttl. A non-positive ttl removes the key.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.entries, key)
		c.updateSize()
		return
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
	c.updateSize()
}

func (c *Memory[V]) Invalidate(keyOrPrefix string) int {
	return c.invalidate(keyOrPrefix, "local")
}

// InvalidateRemote is Invalidate for changes that originated on another instance.
func (c *Memory[V]) InvalidateRemote(keyOrPrefix string) int {
	return c.invalidate(keyOrPrefix, "remote")
}

func (c *Memory[V]) invalidate(keyOrPrefix, origin string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, keyOrPrefix) {
			delete(c.entries, key)
			removed++
		}
	}

	if c.metrics != nil {
		c.metrics.Invalidations.WithLabelValues(origin).Inc()
	}
	c.recordEvictions(removed)
	return removed
}

func (c *Memory[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartEvictionTimer runs a periodic goroutine that evicts expired entries.
// Returns a stop function that should be deferred.
func (c *Memory[V]) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.EvictExpired(); evicted > 0 {
					slog.Debug("Evicted expired cache entries", "count", evicted, "remaining", c.Len())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (c *Memory[V]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.recordEvictions(evicted)
	return evicted
}

// recordEvictions must be called with mu held.
func (c *Memory[V]) recordEvictions(n int) {
	if c.metrics == nil {
		return
	}
	if n > 0 {
		c.metrics.Evictions.Add(float64(n))
	}
	c.updateSize()
}

func (c *Memory[V]) updateSize() {
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
}
