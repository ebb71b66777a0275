package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	checksTotal  *prometheus.CounterVec
	rejectsTotal *prometheus.CounterVec
	sweptTotal   prometheus.Counter
	clients      prometheus.Gauge
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
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "checks_total",
				Help:      "Total number of rate limit checks",
			},
			[]string{"outcome"},
		),
		rejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "rejects_total",
				Help:      "Total number of rate limit rejections by window",
			},
			[]string{"window"},
		),
		sweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "swept_total",
				Help:      "Total number of client records removed by the sweep",
			},
		),
		clients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "clients",
				Help:      "Number of tracked client records",
			},
		),
	}

	// Duplicate registration is tolerated: descriptors are identical.
	_ = registerer.Register(m.checksTotal)
	_ = registerer.Register(m.rejectsTotal)
	_ = registerer.Register(m.sweptTotal)
	_ = registerer.Register(m.clients)

	return m
}

// RecordCheck records a rate limit decision.
func (m *Metrics) RecordCheck(outcome string) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(outcome).Inc()
}

// RecordReject records a rejection for the named window.
func (m *Metrics) RecordReject(window string) {
	if m == nil {
		return
	}
	m.rejectsTotal.WithLabelValues(window).Inc()
}

// RecordSwept records removed client records.
func (m *Metrics) RecordSwept(count int) {
	if m == nil {
		return
	}
	m.sweptTotal.Add(float64(count))
}

// SetClients sets the tracked client gauge.
func (m *Metrics) SetClients(count int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(count))
}
