package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for vote event fan-out.
type BroadcastMetrics struct {
	Published     *prometheus.CounterVec
	PublishErrors *prometheus.CounterVec
	Dropped       *prometheus.CounterVec
	Subscribers   prometheus.Gauge
	Relayed       prometheus.Counter
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "published_total",
			Help:      "Total number of vote events published, by target.",
		}, []string{"target"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publish_errors_total",
			Help:      "Total number of failed publishes, by target.",
		}, []string{"target"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Total number of events dropped, by reason.",
		}, []string{"reason"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of active in-process subscriptions.",
		}),
		Relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "relayed_total",
			Help:      "Total number of events received from other instances.",
		}),
	}

	reg.MustRegister(m.Published, m.PublishErrors, m.Dropped, m.Subscribers, m.Relayed)
	return m
}
