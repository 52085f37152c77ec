// Package eventpublisher composes the vote event bindings behind a single
// domain.EventPublisher.
package eventpublisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const targetTimeout = 2 * time.Second

var ErrClosed = errors.New("event publisher closed")

// Target is a named binding, e.g. "hub", "redis" or "websocket".
type Target struct {
	Name      string
	Publisher domain.EventPublisher
}

// Fanout publishes every event to all targets asynchronously. Each target gets
// its own timeout on a context detached from the caller, so a finished HTTP
// request does not cancel delivery.
type Fanout struct {
	targets []Target
	metrics *metrics.BroadcastMetrics

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

func NewFanout(m *metrics.BroadcastMetrics, targets ...Target) *Fanout {
	return &Fanout{targets: targets, metrics: m}
}

// Publish returns once delivery has been scheduled. Failures are logged as
// broadcast errors and never reach the caller.
func (f *Fanout) Publish(ctx context.Context, topic string, event domain.VoteEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	detached := context.WithoutCancel(ctx)
	f.pending.Go(func() {
		f.deliver(detached, topic, event)
	})
	return nil
}

func (f *Fanout) deliver(ctx context.Context, topic string, event domain.VoteEvent) {
	var wg sync.WaitGroup
	errs := make([]error, len(f.targets))

	for i, target := range f.targets {
		wg.Go(func() {
			tctx, cancel := context.WithTimeout(ctx, targetTimeout)
			defer cancel()

			if err := target.Publisher.Publish(tctx, topic, event); err != nil {
				errs[i] = apperrors.BroadcastError("publish to "+target.Name, err).
					WithField("target", target.Name)
				f.count(target.Name, false)
				return
			}
			f.count(target.Name, true)
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		slog.WarnContext(ctx, "Vote event delivery failed",
			"topic", topic, "event_id", event.ID, "error", err)
	}
}

func (f *Fanout) count(target string, ok bool) {
	if f.metrics == nil {
		return
	}
	if ok {
		f.metrics.Published.WithLabelValues(target).Inc()
	} else {
		f.metrics.PublishErrors.WithLabelValues(target).Inc()
	}
}

// Close rejects new publishes and waits for in-flight deliveries.
func (f *Fanout) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.pending.Wait()
}
