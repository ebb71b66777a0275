package authz

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for authorization decisions.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the
// default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "admitgw"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authz",
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions",
			},
			[]string{"outcome"},
		),
	}

	// Duplicate registration is tolerated: descriptors are identical.
	_ = registerer.Register(m.decisionsTotal)

	return m
}

// RecordDecision records an authorization decision.
func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}
