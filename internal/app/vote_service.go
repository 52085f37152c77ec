package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

// VoteServiceDeps groups the collaborators of VoteService. Metrics may be nil.
type VoteServiceDeps struct {
	Store     domain.VoteStore
	Catalog   domain.ProductCatalog
	Limiter   domain.RateLimiter
	Statuses  domain.Cache[domain.Status]
	Rankings  domain.Cache[[]domain.Aggregate]
	Publisher domain.EventPublisher
	Clock     clockwork.Clock
	Metrics   *metrics.VoteMetrics
}

// VoteService is the only component that references multiple domain components.
type VoteService struct {
	store     domain.VoteStore
	catalog   domain.ProductCatalog
	limiter   domain.RateLimiter
	statuses  domain.Cache[domain.Status]
	rankings  domain.Cache[[]domain.Aggregate]
	publisher domain.EventPublisher
	clock     clockwork.Clock
	metrics   *metrics.VoteMetrics
	statusTTL time.Duration

	fills singleflight.Group

	// generation is bumped on every invalidation. A cache fill that started in an
	// older generation must not write its result.
	genMu      sync.Mutex
	generation uint64
}

func NewVoteService(deps VoteServiceDeps, statusTTL time.Duration) *VoteService {
	return &VoteService{
		store:     deps.Store,
		catalog:   deps.Catalog,
		limiter:   deps.Limiter,
		statuses:  deps.Statuses,
		rankings:  deps.Rankings,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		statusTTL: statusTTL,
	}
}

// CastVote records a vote and returns the client's updated status. A repeated
// identical vote toggles the client's vote off; voteType 0 clears it.
//
// The store is the last step that can fail the request. Cache invalidation and
// publication run only after a durable commit, and publish failures are logged.
func (s *VoteService) CastVote(ctx context.Context, req CastVoteRequest) (*CastVoteResult, error) {
	start := s.clock.Now()
	req.normalize()

	if err := validateRequest(req); err != nil {
		s.countOutcome("invalid")
		return nil, err
	}

	decision := s.limiter.Allow(ctx, domain.RateClassVote, rateIdentity(req.Caller, req.ClientID))
	if !decision.Allowed {
		s.countOutcome("rate_limited")
		return nil, apperrors.RateLimitedError(decision.Limit, decision.Remaining, decision.ResetInSeconds())
	}

	if err := s.ensureProduct(ctx, req.ProductID); err != nil {
		if apperrors.IsType(err, apperrors.TypeNotFound) {
			s.countOutcome("not_found")
		} else {
			s.countOutcome("catalog_error")
		}
		return nil, err
	}

	submitted := domain.VoteType(*req.VoteType)
	outcome, err := s.store.ApplyVote(ctx, req.ProductID, req.ClientID, submitted)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			s.countOutcome("not_found")
			return nil, productNotFound(req.ProductID)
		}
		s.countOutcome("storage_error")
		slog.ErrorContext(ctx, "Vote commit failed", "product_id", req.ProductID, "error", err)
		return nil, apperrors.StorageError("failed to record vote", err)
	}

	s.invalidate(req.ProductID, false)
	s.publish(ctx, outcome.Aggregate)

	s.countOutcome("committed")
	if s.metrics != nil {
		s.metrics.VotesByResult.WithLabelValues(outcome.VoteType.String()).Inc()
		s.metrics.ProcessingDuration.Observe(s.clock.Since(start).Seconds())
	}

	return &CastVoteResult{
		Status:    domain.NewStatus(outcome.Aggregate, outcome.VoteType),
		RateLimit: decision,
	}, nil
}

// GetStatus returns the aggregate for a product plus the client's own vote.
// Unknown products report zeros.
func (s *VoteService) GetStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	req.normalize()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	decision := s.limiter.Allow(ctx, domain.RateClassStatus, rateIdentity(req.Caller, req.ClientID))
	if !decision.Allowed {
		return nil, apperrors.RateLimitedError(decision.Limit, decision.Remaining, decision.ResetInSeconds())
	}

	key := StatusKey(req.ProductID, req.ClientID)
	if status, ok := s.statuses.Get(key); ok {
		return &StatusResult{Status: status, RateLimit: decision}, nil
	}

	gen := s.currentGeneration()
	v, _, _ := s.fills.Do(flightKey(key, gen), func() (any, error) {
		status := s.store.GetStatus(ctx, req.ProductID, req.ClientID)

		s.fillIfCurrent(gen, func() { s.statuses.Set(key, status, s.statusTTL) })
		return status, nil
	})

	return &StatusResult{Status: v.(domain.Status), RateLimit: decision}, nil
}

// Ranking returns products ordered by score, highest first. A zero limit means
// the default of 10.
func (s *VoteService) Ranking(ctx context.Context, req RankingRequest) ([]domain.Aggregate, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Limit == 0 {
		req.Limit = defaultRankingLimit
	}

	decision := s.limiter.Allow(ctx, domain.RateClassStatus, rateIdentity(req.Caller, domain.AnonymousClientID))
	if !decision.Allowed {
		return nil, apperrors.RateLimitedError(decision.Limit, decision.Remaining, decision.ResetInSeconds())
	}

	key := RankingKey(req.Limit)
	if ranking, ok := s.rankings.Get(key); ok {
		return ranking, nil
	}

	gen := s.currentGeneration()
	v, _, _ := s.fills.Do(flightKey(key, gen), func() (any, error) {
		ranking := s.store.TopAggregates(ctx, req.Limit)

		s.fillIfCurrent(gen, func() { s.rankings.Set(key, ranking, s.statusTTL) })
		return ranking, nil
	})

	return v.([]domain.Aggregate), nil
}

// InvalidateProduct drops every cached view of productID. Called when another
// instance reports a committed vote.
func (s *VoteService) InvalidateProduct(productID string) {
	s.invalidate(productID, true)
}

type remoteInvalidator interface {
	InvalidateRemote(keyOrPrefix string) int
}

func (s *VoteService) invalidate(productID string, remote bool) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	s.generation++
	if remote {
		if r, ok := s.statuses.(remoteInvalidator); ok {
			r.InvalidateRemote(StatusPrefix(productID))
		} else {
			s.statuses.Invalidate(StatusPrefix(productID))
		}
		if r, ok := s.rankings.(remoteInvalidator); ok {
			r.InvalidateRemote(ProductsPrefix)
		} else {
			s.rankings.Invalidate(ProductsPrefix)
		}
		return
	}

	s.statuses.Invalidate(StatusPrefix(productID))
	s.rankings.Invalidate(ProductsPrefix)
}

func (s *VoteService) currentGeneration() uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation
}

// flightKey scopes a fill to one generation. A read that starts after an
// invalidation never joins a fill that may have read pre-commit state.
func flightKey(key string, gen uint64) string {
	return key + "#" + strconv.FormatUint(gen, 10)
}

func (s *VoteService) fillIfCurrent(gen uint64, fill func()) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generation == gen {
		fill()
	}
}

func (s *VoteService) publish(ctx context.Context, agg domain.Aggregate) {
	event := domain.VoteEvent{
		ID:         uuid.NewString(),
		ProductID:  agg.ProductID,
		Upvotes:    agg.Upvotes,
		Downvotes:  agg.Downvotes,
		Score:      agg.Score(),
		OccurredAt: s.clock.Now(),
	}

	if err := s.publisher.Publish(ctx, domain.VoteTopic(agg.ProductID), event); err != nil {
		berr := apperrors.BroadcastError("failed to publish vote event", err)
		slog.WarnContext(ctx, "Vote event not published", "product_id", agg.ProductID, "error", berr)
	}
}

func (s *VoteService) ensureProduct(ctx context.Context, productID string) error {
	exists, err := s.catalog.Exists(ctx, productID)
	if err != nil {
		return apperrors.InternalError("failed to look up product", err)
	}
	if !exists {
		return productNotFound(productID)
	}
	return nil
}

func productNotFound(productID string) error {
	return apperrors.NotFoundError("product not found").WithField("productId", productID)
}

func (s *VoteService) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.VotesProcessed.WithLabelValues(outcome).Inc()
	}
}
