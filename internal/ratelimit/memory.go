package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const memoryCleanupInterval = time.Minute

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps windows in process. State is lost on restart, which only resets
// the anti-abuse counters.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	clock   clockwork.Clock
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store and starts a goroutine that drops expired windows.
// Close stops it.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	m := &MemoryStore{
		windows: make(map[string]*memoryWindow),
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.windows[key] = &memoryWindow{count: 1, resetAt: now.Add(window)}
		return 1, window, nil
	}

	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryStore) cleanup() {
	ticker := m.clock.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryStore) evictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	evicted := 0
	for key, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, key)
			evicted++
		}
	}
	return evicted
}
