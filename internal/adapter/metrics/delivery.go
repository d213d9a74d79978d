package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics holds Prometheus metrics for outbound reply chunks.
type DeliveryMetrics struct {
	ChunksSent   *prometheus.CounterVec
	Deliveries   prometheus.Counter
	QueuedPools  prometheus.Gauge
	SendDuration prometheus.Histogram
}

// NewDeliveryMetrics creates and registers delivery metrics on the given registry.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		ChunksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "chunks_total",
			Help:      "Total number of reply chunks, by status.",
		}, []string{"status"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "deliveries_total",
			Help:      "Total number of completed deliveries.",
		}),
		QueuedPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "session_queues",
			Help:      "Number of per-session delivery queues.",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "send_duration_seconds",
			Help:      "Duration of a single chunk send in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(m.ChunksSent, m.Deliveries, m.QueuedPools, m.SendDuration)
	return m
}
