package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics covers the centrifuge node: live connections, subscription
// admission and events pushed into vote channels.
type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	MessagesPublished prometheus.Counter
	Subscriptions     *prometheus.CounterVec
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "WebSocket clients currently connected to this instance.",
		}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_published_total",
			Help:      "Vote events handed to the centrifuge node for delivery.",
		}),
		Subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "subscriptions_total",
			Help:      "Channel subscription attempts, by result (accepted, bad_channel, unknown_product, catalog_error).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesPublished, m.Subscriptions)
	return m
}
