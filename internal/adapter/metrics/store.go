package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics holds Prometheus metrics for vote store commits.
type StoreMetrics struct {
	CommitDuration *prometheus.HistogramVec
	CommitErrors   *prometheus.CounterVec
	WriteRetries   *prometheus.CounterVec
	Clamps         prometheus.Counter
	ReadFailures   *prometheus.CounterVec
	HistoryPruned  prometheus.Counter
}

// NewStoreMetrics creates and registers vote store metrics on the given registry.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		CommitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_duration_seconds",
			Help:      "Duration of durable vote commits in seconds, by backend.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"backend"}),
		CommitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commit_errors_total",
			Help:      "Total number of vote commits that failed after retries, by backend.",
		}, []string{"backend"}),
		WriteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "write_retries_total",
			Help:      "Total number of retried durable writes, by backend.",
		}, []string{"backend"}),
		Clamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "clamps_total",
			Help:      "Total number of aggregate decrements held at zero.",
		}),
		ReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "read_failures_total",
			Help:      "Total number of reads that fell back to defaults, by operation.",
		}, []string{"operation"}),
		HistoryPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "history_pruned_total",
			Help:      "Total number of vote history rows removed by the pruner.",
		}),
	}

	reg.MustRegister(m.CommitDuration, m.CommitErrors, m.WriteRetries, m.Clamps, m.ReadFailures, m.HistoryPruned)
	return m
}
