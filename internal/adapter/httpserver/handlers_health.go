package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck probes one dependency (store, redis).
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type livenessReport struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
}

// probe runs every dependency check in parallel and answers 503 if any failed.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		report := s.checkDependencies(ctx)
		code := http.StatusOK
		if report.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}

func (s *Server) checkDependencies(ctx context.Context) probeReport {
	results := make([]error, len(s.healthChecks))
	var wg sync.WaitGroup
	for i, hc := range s.healthChecks {
		wg.Go(func() { results[i] = hc.Check(ctx) })
	}
	wg.Wait()

	report := probeReport{Status: "ready", Checks: make(map[string]string, len(results))}
	for i, err := range results {
		name := s.healthChecks[i].Name
		if err != nil {
			report.Status = "unhealthy"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessReport{
		Status:  "ok",
		Uptime:  s.clock.Since(s.startTime).Seconds(),
		Version: version.Version,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
