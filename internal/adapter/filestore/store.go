package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/ledger"
	"github.com/pscheid92/votepulse/internal/platform/retry"
)

const (
	backendLabel = "file"
	stripeCount  = 64
)

type Options struct {
	// Path of the JSON ledger. Empty keeps the ledger in memory only.
	Path         string
	HistoryLimit int
	Retry        retry.Policy
	Clock        clockwork.Clock
	Metrics      *metrics.StoreMetrics
}

type opResult struct {
	outcome domain.VoteOutcome
	err     error
}

type pendingOp struct {
	productID string
	clientID  string
	vote      domain.VoteType
	done      chan opResult
}

type Store struct {
	path         string
	historyLimit int
	retryPolicy  retry.Policy
	clock        clockwork.Clock
	metrics      *metrics.StoreMetrics
	encode       encodeFunc

	snapshot atomic.Pointer[ledger.Document]
	stripes  [stripeCount]sync.Mutex

	queueMu  sync.Mutex
	queue    []*pendingOp
	flushing bool

	commitMu sync.Mutex
	closed   atomic.Bool
}

// Open loads the ledger at opts.Path, or starts an in-memory ledger when the path is empty.
func Open(opts Options) (*Store, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	policy := opts.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Clock == nil {
		policy.Clock = clock
	}

	s := &Store{
		path:         opts.Path,
		historyLimit: opts.HistoryLimit,
		retryPolicy:  policy,
		clock:        clock,
		metrics:      opts.Metrics,
		encode:       encodeJSON,
	}
	s.retryPolicy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Ledger write failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if s.metrics != nil {
			s.metrics.WriteRetries.WithLabelValues(backendLabel).Inc()
		}
	}

	doc := ledger.NewDocument()
	if s.path != "" {
		loaded, err := load(s.path, clock.Now().Unix())
		if err != nil {
			return nil, err
		}
		doc = loaded
	}
	s.snapshot.Store(doc)

	slog.Info("Vote store opened", "backend", backendLabel, "path", s.path, "products", len(doc.VoteCounts), "votes", len(doc.Votes))
	return s, nil
}

func (s *Store) GetVote(_ context.Context, productID, clientID string) domain.VoteType {
	return s.snapshot.Load().Vote(productID, clientID)
}

func (s *Store) GetAggregate(_ context.Context, productID string) domain.Aggregate {
	return s.snapshot.Load().Aggregate(productID)
}

func (s *Store) GetStatus(_ context.Context, productID, clientID string) domain.Status {
	doc := s.snapshot.Load()
	return domain.NewStatus(doc.Aggregate(productID), doc.Vote(productID, clientID))
}

func (s *Store) TopAggregates(_ context.Context, limit int) []domain.Aggregate {
	return ledger.Top(s.snapshot.Load().Aggregates(), limit)
}

// History returns a copy of the capped vote history, oldest first.
func (s *Store) History() []ledger.Entry {
	doc := s.snapshot.Load()
	out := make([]ledger.Entry, len(doc.UserVotes))
	copy(out, doc.UserVotes)
	return out
}

// ApplyVote runs the toggle state machine for the pair and returns once the result is durable.
// It is not retried on the caller's behalf; a caller that gave up waiting must re-read the status.
func (s *Store) ApplyVote(_ context.Context, productID, clientID string, submitted domain.VoteType) (domain.VoteOutcome, error) {
	if s.closed.Load() {
		return domain.VoteOutcome{}, domain.ErrStoreClosed
	}

	mu := s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()

	op := &pendingOp{productID: productID, clientID: clientID, vote: submitted, done: make(chan opResult, 1)}

	s.queueMu.Lock()
	s.queue = append(s.queue, op)
	lead := !s.flushing
	if lead {
		s.flushing = true
	}
	s.queueMu.Unlock()

	if lead {
		s.flush()
	}

	res := <-op.done
	return res.outcome, res.err
}

// flush commits batches until the queue is empty.
func (s *Store) flush() {
	for {
		s.queueMu.Lock()
		batch := s.queue
		s.queue = nil
		if len(batch) == 0 {
			s.flushing = false
			s.queueMu.Unlock()
			return
		}
		s.queueMu.Unlock()

		s.commit(batch)
	}
}

func (s *Store) commit(batch []*pendingOp) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	start := s.clock.Now()
	next := s.snapshot.Load().Clone()
	outcomes := make([]domain.VoteOutcome, len(batch))
	for i, op := range batch {
		change := next.Apply(op.productID, op.clientID, op.vote, start, s.historyLimit)
		if change.Clamped {
			s.warnClamped(op.productID, change)
		}
		outcomes[i] = change.Outcome
	}

	if err := s.persist(next); err != nil {
		slog.Error("Ledger commit failed, discarding batch", "batch_size", len(batch), "error", err)
		if s.metrics != nil {
			s.metrics.CommitErrors.WithLabelValues(backendLabel).Inc()
		}
		for _, op := range batch {
			op.done <- opResult{err: fmt.Errorf("commit vote: %w", err)}
		}
		return
	}

	s.snapshot.Store(next)
	if s.metrics != nil {
		s.metrics.CommitDuration.WithLabelValues(backendLabel).Observe(s.clock.Since(start).Seconds())
	}
	for i, op := range batch {
		op.done <- opResult{outcome: outcomes[i]}
	}
}

func (s *Store) persist(doc *ledger.Document) error {
	if s.path == "" {
		return nil
	}
	return retry.DoVoid(context.Background(), s.retryPolicy, retry.StopOnContext, func(context.Context) error {
		return writeAtomic(s.path, doc, s.encode)
	})
}

func (s *Store) warnClamped(productID string, c ledger.Change) {
	slog.Warn("Vote aggregate clamped at zero",
		"product_id", productID,
		"upvotes", c.Before.Upvotes,
		"downvotes", c.Before.Downvotes,
		"delta_up", c.Delta.Upvotes,
		"delta_down", c.Delta.Downvotes,
	)
	if s.metrics != nil {
		s.metrics.Clamps.Inc()
	}
}

func (s *Store) stripe(productID string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(productID)%stripeCount]
}

// Close rejects new votes and waits for an in-flight commit to finish.
func (s *Store) Close() error {
	s.closed.Store(true)
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return nil
}
