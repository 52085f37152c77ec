package metrics

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks the JSON API. Event streams stay open for minutes, so they are
// counted by an open-streams gauge instead of the latency histogram.
type HTTPMetrics struct {
	Latency     *prometheus.HistogramVec
	Responses   *prometheus.CounterVec
	InFlight    prometheus.Gauge
	OpenStreams prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests in seconds, by route.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status_code"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "API responses, by route and status code.",
		}, []string{"method", "route", "status_code"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "API requests currently being served, event streams excluded.",
		}),
		OpenStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "open_event_streams",
			Help:      "Server-sent event streams currently open.",
		}),
	}

	reg.MustRegister(m.Latency, m.Responses, m.InFlight, m.OpenStreams)
	return m
}

// Middleware records API traffic. Probes and the scrape endpoint are not counted.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			switch {
			case route == "/metrics", strings.HasPrefix(route, "/health/"):
				return next(c)
			case strings.HasSuffix(route, "/events"):
				m.OpenStreams.Inc()
				defer m.OpenStreams.Dec()
				return next(c)
			}

			m.InFlight.Inc()
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(seconds float64) {
				code := strconv.Itoa(c.Response().Status)
				method := c.Request().Method
				m.Latency.WithLabelValues(method, route, code).Observe(seconds)
				m.Responses.WithLabelValues(method, route, code).Inc()
			}))

			err := next(c)
			timer.ObserveDuration()
			m.InFlight.Dec()
			return err
		}
	}
}
