package httpserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/app"
	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	castVoteFn  func(ctx context.Context, req app.CastVoteRequest) (*app.CastVoteResult, error)
	getStatusFn func(ctx context.Context, req app.StatusRequest) (*app.StatusResult, error)
	rankingFn   func(ctx context.Context, req app.RankingRequest) ([]domain.Aggregate, error)
}

func (m *mockAppService) CastVote(ctx context.Context, req app.CastVoteRequest) (*app.CastVoteResult, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetStatus(ctx context.Context, req app.StatusRequest) (*app.StatusResult, error) {
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx, req)
	}
	return &app.StatusResult{}, nil
}

func (m *mockAppService) Ranking(ctx context.Context, req app.RankingRequest) ([]domain.Aggregate, error) {
	if m.rankingFn != nil {
		return m.rankingFn(ctx, req)
	}
	return nil, nil
}

type mockSubscriber struct {
	subscribeFn func(ctx context.Context, topic string) (domain.Subscription, error)
}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (domain.Subscription, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, topic)
	}
	return nil, errors.New("not implemented")
}

type mockSubscription struct {
	events    chan domain.VoteEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func newMockSubscription(buffer int) *mockSubscription {
	return &mockSubscription{events: make(chan domain.VoteEvent, buffer), closed: make(chan struct{})}
}

func (m *mockSubscription) Events() <-chan domain.VoteEvent { return m.events }

func (m *mockSubscription) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		AppURL:            "http://localhost:8080",
		HTTPRatePerSecond: 1000,
		HTTPRateBurst:     1000,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	srv := &Server{
		echo:      echo.New(),
		config:    testConfig(),
		app:       app,
		events:    &mockSubscriber{},
		clock:     clock,
		startTime: clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withEvents(events domain.EventSubscriber) func(*Server) {
	return func(s *Server) {
		s.events = events
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}
