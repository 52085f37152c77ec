package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
)

const pruneTimeout = 10 * time.Second

type historyStore interface {
	PruneHistory(ctx context.Context) (int64, error)
}

type leadership interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// HistoryPruner periodically trims the vote history table. With a leader set,
// only the replica holding the lease prunes; without one every tick prunes.
type HistoryPruner struct {
	store    historyStore
	leader   leadership
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.StoreMetrics

	mu      sync.Mutex
	leading bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHistoryPruner(store historyStore, leader leadership, clock clockwork.Clock, interval time.Duration, m *metrics.StoreMetrics) *HistoryPruner {
	return &HistoryPruner{
		store:    store,
		leader:   leader,
		clock:    clock,
		interval: interval,
		metrics:  m,
		stopCh:   make(chan struct{}),
	}
}

func (p *HistoryPruner) Start() {
	ticker := p.clock.NewTicker(p.interval)
	p.wg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if err := p.RunOnce(context.Background()); err != nil {
					slog.Warn("History prune failed", "error", err)
				}
			case <-p.stopCh:
				return
			}
		}
	})
	slog.Info("History pruner started", "interval", p.interval)
}

// RunOnce prunes if this instance holds (or can take) the lease.
func (p *HistoryPruner) RunOnce(ctx context.Context) error {
	ok, err := p.lead(ctx)
	if err != nil || !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	removed, err := p.store.PruneHistory(ctx)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.HistoryPruned.Add(float64(removed))
	}
	if removed > 0 {
		slog.Debug("Pruned vote history", "removed", removed)
	}
	return nil
}

func (p *HistoryPruner) lead(ctx context.Context) (bool, error) {
	if p.leader == nil {
		return true, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.leading {
		err := p.leader.Renew(ctx)
		if err == nil {
			return true, nil
		}
		slog.Info("History pruner lost leadership", "error", err)
		p.leading = false
	}

	ok, err := p.leader.TryAcquire(ctx)
	if err != nil {
		return false, err
	}
	p.leading = ok
	return ok, nil
}

// Stop ends the loop and hands the lease back.
func (p *HistoryPruner) Stop(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.leader == nil || !p.leading {
		return
	}
	if err := p.leader.Release(ctx); err != nil {
		slog.Warn("Failed to release history pruner lease", "error", err)
	}
	p.leading = false
}
