package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute is the label value used for requests that do not map
// to a registered route, keeping the path label cardinality bounded.
const unmatchedRoute = "unmatched"

// Metrics holds the gateway-level Prometheus metrics.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	registry        *prometheus.Registry

	mu     sync.RWMutex
	routes map[string]struct{}
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "admitgw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routes:   make(map[string]struct{}),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "path", "status"},
	)

	m.registry.MustRegister(m.requestsTotal)
	m.registry.MustRegister(m.requestDuration)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registerer returns the registerer backing this Metrics instance so
// that per-component metrics can be exposed on the same endpoint.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterRoutes marks paths as known routes. Requests for any other
// path are recorded under the unmatched label.
func (m *Metrics) RegisterRoutes(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, path := range paths {
		m.routes[path] = struct{}{}
	}
}

// routeLabel maps a request path to its metric label.
func (m *Metrics) routeLabel(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.routes[path]; ok {
		return path
	}
	return unmatchedRoute
}

// RecordRequest records a completed HTTP request. The path is reduced
// to a registered route label so arbitrary request paths cannot grow
// the series set.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	route := m.routeLabel(path)
	statusLabel := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusLabel).Inc()
	m.requestDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// MetricsMiddleware records request count and duration for every
// request passing through it.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &metricsResponseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Method, r.URL.Path, rw.status, time.Since(start))
		})
	}
}

// metricsResponseWriter captures the response status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code.
func (w *metricsResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
