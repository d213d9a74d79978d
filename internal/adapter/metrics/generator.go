package metrics

import "github.com/prometheus/client_golang/prometheus"

// GeneratorMetrics holds Prometheus metrics for external text generation.
type GeneratorMetrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	CircuitState prometheus.Gauge
}

// NewGeneratorMetrics creates and registers text-generation metrics on the given registry.
func NewGeneratorMetrics(reg prometheus.Registerer) *GeneratorMetrics {
	m := &GeneratorMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "requests_total",
			Help:      "Total number of text generation requests, by provider and result.",
		}, []string{"provider", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "request_duration_seconds",
			Help:      "Duration of text generation requests in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"provider"}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Requests, m.Duration, m.CircuitState)
	return m
}
