package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConfigMetrics holds Prometheus metrics for monitored-user configuration reloads.
type ConfigMetrics struct {
	Reloads        *prometheus.CounterVec
	MonitoredUsers prometheus.Gauge
	RemoteReloads  prometheus.Counter
}

// NewConfigMetrics creates and registers configuration metrics on the given registry.
func NewConfigMetrics(reg prometheus.Registerer) *ConfigMetrics {
	m := &ConfigMetrics{
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Total number of configuration reloads, by scope and result.",
		}, []string{"scope", "result"}),
		MonitoredUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "monitored_users",
			Help:      "Number of monitored users currently cached.",
		}),
		RemoteReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "remote_reloads_total",
			Help:      "Total number of reloads triggered by another replica.",
		}),
	}

	reg.MustRegister(m.Reloads, m.MonitoredUsers, m.RemoteReloads)
	return m
}
