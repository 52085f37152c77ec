package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pscheid92/votepulse/internal/platform/correlation"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(correlationMiddleware)
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}))
	s.echo.Use(s.corsMiddleware())

	s.registerHealthRoutes()
	s.registerVoteRoutes()

	if s.websocketHandler != nil {
		s.echo.GET("/connection/websocket", echo.WrapHandler(s.websocketHandler))
	}
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) registerVoteRoutes() {
	api := s.echo.Group("/api", newRateLimiter(s.config.HTTPRatePerSecond, s.config.HTTPRateBurst))

	api.GET("/votes/:productId", s.handleGetStatus)
	api.POST("/votes", s.handleCastVote)
	api.GET("/votes/:productId/events", s.handleVoteEvents)
	api.GET("/ranking", s.handleRanking)
}

// corsMiddleware lets embedding pages call /api. It runs at the root so that
// preflight requests answered by the router are covered too.
func (s *Server) corsMiddleware() echo.MiddlewareFunc {
	policy := s.config.Origins()
	return middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, "/api/")
		},
		AllowOriginFunc: func(origin string) (bool, error) {
			return origin != "" && policy.Allows(origin), nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, correlation.Header},
		ExposeHeaders: []string{
			correlation.Header,
			headerRetryAfter,
			headerRateLimitLimit,
			headerRateLimitRemaining,
			headerRateLimitReset,
		},
		MaxAge: 600,
	})
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health/") || c.Path() == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
