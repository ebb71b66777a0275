package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/avolkov/admitgw/internal/observability"
)

// Recorder accepts structured auth events. Record is fire-and-forget:
// it must return promptly and its failures are never propagated to the
// caller.
type Recorder interface {
	// Record records an audit event.
	Record(ctx context.Context, event *Event)

	// Close flushes buffered events and releases resources.
	Close() error
}

// recorder implements Recorder with an async buffered worker so the
// admission path never blocks on sink I/O.
type recorder struct {
	config  *Config
	writer  io.Writer
	closer  io.Closer
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics

	events    chan *Event
	closeOnce sync.Once
	done      chan struct{}
}

// Metrics contains audit metrics.
type Metrics struct {
	eventsTotal  *prometheus.CounterVec
	droppedTotal prometheus.Counter
}

// NewMetrics creates new audit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new audit metrics registered with
// the provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "admitgw"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events",
			},
			[]string{"type", "outcome"},
		),
		droppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "dropped_total",
				Help:      "Total number of audit events dropped",
			},
		),
	}

	// Duplicate registration is tolerated: descriptors are identical.
	_ = registerer.Register(m.eventsTotal)
	_ = registerer.Register(m.droppedTotal)

	return m
}

// RecordEvent records an audit event metric.
func (m *Metrics) RecordEvent(eventType EventType, success bool) {
	if m == nil || m.eventsTotal == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.eventsTotal.WithLabelValues(string(eventType), outcome).Inc()
}

// RecordDropped records a dropped audit event.
func (m *Metrics) RecordDropped() {
	if m == nil || m.droppedTotal == nil {
		return
	}
	m.droppedTotal.Inc()
}

// RecorderOption is a functional option for the recorder.
type RecorderOption func(*recorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *recorder) {
		r.logger = logger
	}
}

// WithRecorderMetrics sets the metrics.
func WithRecorderMetrics(metrics *Metrics) RecorderOption {
	return func(r *recorder) {
		r.metrics = metrics
	}
}

// WithRecorderWriter sets the writer, overriding the configured output.
func WithRecorderWriter(writer io.Writer) RecorderOption {
	return func(r *recorder) {
		r.writer = writer
	}
}

// NewRecorder creates a new audit recorder. Events are written as JSON
// lines by a background worker; when the sink keeps failing a circuit
// breaker opens and writes are dropped immediately instead of piling up.
func NewRecorder(config *Config, opts ...RecorderOption) (Recorder, error) {
	if config == nil {
		config = DefaultConfig()
	}

	r := &recorder{
		config: config,
		logger: observability.NopLogger(),
		events: make(chan *Event, config.GetEffectiveBufferSize()),
		done:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = NewMetrics("admitgw")
	}

	if r.writer == nil {
		writer, closer, err := r.createWriter()
		if err != nil {
			return nil, err
		}
		r.writer = writer
		r.closer = closer
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("audit sink breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	go r.run()

	return r, nil
}

// createWriter creates the output writer based on configuration.
func (r *recorder) createWriter() (io.Writer, io.Closer, error) {
	switch r.config.Output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		// Path comes from trusted configuration.
		//nolint:gosec // G304
		file, err := os.OpenFile(r.config.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return file, file, nil
	}
}

// Record enqueues an audit event. When the buffer is full the event is
// dropped and counted; the caller is never blocked.
func (r *recorder) Record(ctx context.Context, event *Event) {
	if !r.config.Enabled || event == nil {
		return
	}

	event.withTraceContext(ctx)
	r.metrics.RecordEvent(event.Type, event.Success)

	select {
	case r.events <- event:
	default:
		r.metrics.RecordDropped()
		r.logger.Warn("audit buffer full, dropping event",
			observability.String("type", string(event.Type)),
		)
	}
}

// run drains the event channel until Close.
func (r *recorder) run() {
	for event := range r.events {
		r.write(event)
	}
	close(r.done)
}

// write serializes one event through the circuit breaker. Failures are
// logged and swallowed.
func (r *recorder) write(event *Event) {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		data = append(data, '\n')
		_, err = r.writer.Write(data)
		return nil, err
	})
	if err != nil {
		r.metrics.RecordDropped()
		r.logger.Error("failed to write audit event", observability.Error(err))
	}
}

// Close stops the worker, flushes the remaining buffered events, and
// closes the underlying file if any.
func (r *recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.events)
	})
	<-r.done

	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// nopRecorder is a no-op audit recorder.
type nopRecorder struct{}

// NewNopRecorder creates a recorder that discards all events.
func NewNopRecorder() Recorder {
	return &nopRecorder{}
}

func (r *nopRecorder) Record(_ context.Context, _ *Event) {}

func (r *nopRecorder) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*recorder)(nil)
	_ Recorder = (*nopRecorder)(nil)
)
