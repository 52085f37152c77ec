package metrics

import "github.com/prometheus/client_golang/prometheus"

// RateLimitMetrics holds Prometheus metrics for the vote and status limiters.
type RateLimitMetrics struct {
	Decisions *prometheus.CounterVec
	FailOpen  *prometheus.CounterVec
}

// NewRateLimitMetrics creates and registers rate limiter metrics on the given registry.
func NewRateLimitMetrics(reg prometheus.Registerer) *RateLimitMetrics {
	m := &RateLimitMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Total number of rate limit decisions, by class and result.",
		}, []string{"class", "result"}),
		FailOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fail_open_total",
			Help:      "Total number of requests allowed because the limiter store failed.",
		}, []string{"class"}),
	}

	reg.MustRegister(m.Decisions, m.FailOpen)
	return m
}
