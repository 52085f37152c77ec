package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/app"
	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/platform/config"
)

type appService interface {
	CastVote(ctx context.Context, req app.CastVoteRequest) (*app.CastVoteResult, error)
	GetStatus(ctx context.Context, req app.StatusRequest) (*app.StatusResult, error)
	Ranking(ctx context.Context, req app.RankingRequest) ([]domain.Aggregate, error)
}

// Handlers groups the optional non-API endpoints. Nil handlers are not mounted.
type Handlers struct {
	WebSocket http.Handler
	Metrics   http.Handler
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app    appService
	events domain.EventSubscriber

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, events domain.EventSubscriber, handlers Handlers, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		app:              app,
		events:           events,
		websocketHandler: handlers.WebSocket,
		metricsHandler:   handlers.Metrics,
		httpMetrics:      httpMetrics,
		healthChecks:     healthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
