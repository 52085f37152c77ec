package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/ledger"
	"github.com/pscheid92/votepulse/internal/platform/retry"
)

const backendLabel = "postgres"

const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateForeignKeyViolation  = "23503"
)

type VoteStoreOptions struct {
	HistoryLimit int
	Retry        retry.Policy
	Clock        clockwork.Clock
	Metrics      *metrics.StoreMetrics
}

// VoteStore keeps votes in PostgreSQL. Writers of the same product serialize on the
// vote_counts row lock; different products commit in parallel.
type VoteStore struct {
	pool         *pgxpool.Pool
	historyLimit int
	retryPolicy  retry.Policy
	clock        clockwork.Clock
	metrics      *metrics.StoreMetrics
}

func NewVoteStore(pool *pgxpool.Pool, opts VoteStoreOptions) *VoteStore {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &VoteStore{
		pool:         pool,
		historyLimit: opts.HistoryLimit,
		retryPolicy:  opts.Retry,
		clock:        clock,
		metrics:      opts.Metrics,
	}
	if s.retryPolicy.MaxAttempts < 1 {
		s.retryPolicy.MaxAttempts = 1
	}
	if s.retryPolicy.Clock == nil {
		s.retryPolicy.Clock = clock
	}
	s.retryPolicy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Vote transaction failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if s.metrics != nil {
			s.metrics.WriteRetries.WithLabelValues(backendLabel).Inc()
		}
	}
	return s
}

func (s *VoteStore) GetVote(ctx context.Context, productID, clientID string) domain.VoteType {
	var vt int16
	err := s.pool.QueryRow(ctx,
		`SELECT vote_type FROM votes WHERE product_id = $1 AND client_id = $2`,
		productID, clientID,
	).Scan(&vt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VoteNone
	}
	if err != nil {
		s.readFailed(ctx, "get_vote", err)
		return domain.VoteNone
	}
	return domain.VoteType(vt)
}

func (s *VoteStore) GetAggregate(ctx context.Context, productID string) domain.Aggregate {
	agg := domain.Aggregate{ProductID: productID}
	err := s.pool.QueryRow(ctx,
		`SELECT upvotes, downvotes FROM vote_counts WHERE product_id = $1`,
		productID,
	).Scan(&agg.Upvotes, &agg.Downvotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return agg
	}
	if err != nil {
		s.readFailed(ctx, "get_aggregate", err)
		return domain.Aggregate{ProductID: productID}
	}
	return agg
}

// GetStatus reads counts and the client's vote in a single statement so both come
// from the same snapshot.
func (s *VoteStore) GetStatus(ctx context.Context, productID, clientID string) domain.Status {
	var agg domain.Aggregate
	var vt int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(c.upvotes, 0), COALESCE(c.downvotes, 0), COALESCE(v.vote_type, 0)
		FROM (SELECT $1::text AS product_id) p
		LEFT JOIN vote_counts c ON c.product_id = p.product_id
		LEFT JOIN votes v ON v.product_id = p.product_id AND v.client_id = $2`,
		productID, clientID,
	).Scan(&agg.Upvotes, &agg.Downvotes, &vt)
	if err != nil {
		s.readFailed(ctx, "get_status", err)
		return domain.Status{}
	}
	return domain.NewStatus(agg, domain.VoteType(vt))
}

func (s *VoteStore) TopAggregates(ctx context.Context, limit int) []domain.Aggregate {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, upvotes, downvotes
		FROM vote_counts
		ORDER BY upvotes - downvotes DESC, upvotes DESC, product_id
		LIMIT $1`, limit)
	if err != nil {
		s.readFailed(ctx, "top_aggregates", err)
		return []domain.Aggregate{}
	}

	aggs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Aggregate, error) {
		var a domain.Aggregate
		err := row.Scan(&a.ProductID, &a.Upvotes, &a.Downvotes)
		return a, err
	})
	if err != nil {
		s.readFailed(ctx, "top_aggregates", err)
		return []domain.Aggregate{}
	}
	return aggs
}

// ApplyVote runs the toggle state machine inside one transaction. It returns
// domain.ErrProductNotFound when the product is not in the catalog.
func (s *VoteStore) ApplyVote(ctx context.Context, productID, clientID string, submitted domain.VoteType) (domain.VoteOutcome, error) {
	start := s.clock.Now()

	outcome, err := retry.Do(ctx, s.retryPolicy, classify, func(ctx context.Context) (domain.VoteOutcome, error) {
		var out domain.VoteOutcome
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var txErr error
			out, txErr = s.applyVoteTx(ctx, tx, productID, clientID, submitted)
			return txErr
		})
		return out, err
	})
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.VoteOutcome{}, domain.ErrProductNotFound
		}
		if s.metrics != nil {
			s.metrics.CommitErrors.WithLabelValues(backendLabel).Inc()
		}
		return domain.VoteOutcome{}, fmt.Errorf("apply vote: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CommitDuration.WithLabelValues(backendLabel).Observe(s.clock.Since(start).Seconds())
	}
	return outcome, nil
}

func (s *VoteStore) applyVoteTx(ctx context.Context, tx pgx.Tx, productID, clientID string, submitted domain.VoteType) (domain.VoteOutcome, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO vote_counts (product_id) VALUES ($1) ON CONFLICT (product_id) DO NOTHING`,
		productID,
	); err != nil {
		if isForeignKeyViolation(err) {
			return domain.VoteOutcome{}, domain.ErrProductNotFound
		}
		return domain.VoteOutcome{}, fmt.Errorf("ensure counts row: %w", err)
	}

	var before ledger.Counts
	if err := tx.QueryRow(ctx,
		`SELECT upvotes, downvotes FROM vote_counts WHERE product_id = $1 FOR UPDATE`,
		productID,
	).Scan(&before.Upvotes, &before.Downvotes); err != nil {
		return domain.VoteOutcome{}, fmt.Errorf("lock counts row: %w", err)
	}

	current := domain.VoteNone
	var vt int16
	err := tx.QueryRow(ctx,
		`SELECT vote_type FROM votes WHERE product_id = $1 AND client_id = $2`,
		productID, clientID,
	).Scan(&vt)
	switch {
	case err == nil:
		current = domain.VoteType(vt)
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.VoteOutcome{}, fmt.Errorf("read current vote: %w", err)
	}

	next, delta := ledger.Transition(current, submitted)

	if next == domain.VoteNone {
		_, err = tx.Exec(ctx, `DELETE FROM votes WHERE product_id = $1 AND client_id = $2`, productID, clientID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO votes (product_id, client_id, vote_type, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (product_id, client_id)
			DO UPDATE SET vote_type = EXCLUDED.vote_type, updated_at = EXCLUDED.updated_at`,
			productID, clientID, int16(next))
	}
	if err != nil {
		return domain.VoteOutcome{}, fmt.Errorf("write vote: %w", err)
	}

	after, clamped := before.Apply(delta)
	if clamped {
		slog.WarnContext(ctx, "Vote aggregate clamped at zero",
			"product_id", productID,
			"upvotes", before.Upvotes,
			"downvotes", before.Downvotes,
			"delta_up", delta.Upvotes,
			"delta_down", delta.Downvotes,
		)
		if s.metrics != nil {
			s.metrics.Clamps.Inc()
		}
	}

	if !delta.IsZero() {
		if _, err := tx.Exec(ctx,
			`UPDATE vote_counts SET upvotes = $2, downvotes = $3, updated_at = now() WHERE product_id = $1`,
			productID, after.Upvotes, after.Downvotes,
		); err != nil {
			return domain.VoteOutcome{}, fmt.Errorf("write counts: %w", err)
		}
	}

	if err := s.recordHistory(ctx, tx, productID, clientID, next); err != nil {
		return domain.VoteOutcome{}, err
	}

	return domain.VoteOutcome{Aggregate: after.Aggregate(productID), VoteType: next}, nil
}

func (s *VoteStore) recordHistory(ctx context.Context, tx pgx.Tx, productID, clientID string, vt domain.VoteType) error {
	if s.historyLimit <= 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO vote_history (product_id, client_id, vote_type) VALUES ($1, $2, $3)`,
		productID, clientID, int16(vt),
	); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// PruneHistory trims vote_history down to the newest historyLimit rows and
// reports how many were removed.
func (s *VoteStore) PruneHistory(ctx context.Context) (int64, error) {
	if s.historyLimit <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM vote_history
		WHERE id <= (SELECT id FROM vote_history ORDER BY id DESC OFFSET $1 LIMIT 1)`,
		s.historyLimit,
	)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *VoteStore) Close() error {
	return nil
}

func (s *VoteStore) readFailed(ctx context.Context, op string, err error) {
	slog.WarnContext(ctx, "Vote store read failed, returning default", "operation", op, "error", err)
	if s.metrics != nil {
		s.metrics.ReadFailures.WithLabelValues(op).Inc()
	}
}

// classify retries serialization failures, deadlocks, failed connects and errors
// pgconn marks as raised before anything reached the server. A timeout alone is
// not enough: the COMMIT may already have been applied.
func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected:
			return retry.Retry
		}
		return retry.Stop
	}

	if pgconn.SafeToRetry(err) {
		return retry.Retry
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return retry.Retry
	}
	return retry.Stop
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateForeignKeyViolation
}
