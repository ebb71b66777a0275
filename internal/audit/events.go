// Package audit provides best-effort structured auth event recording.
// The admission decision never waits on, or fails because of, the
// audit sink.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventType represents the type of audit event.
type EventType string

// Event types emitted by the admission pipeline.
const (
	EventAuthSuccess      EventType = "auth_success"
	EventAuthFailure      EventType = "auth_failure"
	EventAuthMissing      EventType = "auth_missing"
	EventAuthMalformed    EventType = "auth_malformed"
	EventPermissionDenied EventType = "permission_denied"
	EventRateLimited      EventType = "rate_limited"
)

// Event represents a structured auth event. Terminal value, never
// mutated after it is handed to a Recorder.
type Event struct {
	// ID is a unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Subject is the authenticated principal, or "anonymous".
	Subject string `json:"subject"`

	// Success indicates whether the gated operation succeeded.
	Success bool `json:"success"`

	// IPAddress is the client network address.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// ErrorMessage carries failure detail when Success is false.
	ErrorMessage string `json:"error_message,omitempty"`

	// TraceID is the trace ID for distributed tracing.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the span ID for distributed tracing.
	SpanID string `json:"span_id,omitempty"`
}

// NewEvent creates a new audit event with a generated ID.
func NewEvent(eventType EventType, subject string, success bool) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Subject:   subject,
		Success:   success,
	}
}

// WithClientInfo sets the client address and user agent.
func (e *Event) WithClientInfo(ip, userAgent string) *Event {
	e.IPAddress = ip
	e.UserAgent = userAgent
	return e
}

// WithError sets the error detail.
func (e *Event) WithError(message string) *Event {
	e.ErrorMessage = message
	return e
}

// withTraceContext fills trace and span IDs from the request context
// when a valid span context is present.
func (e *Event) withTraceContext(ctx context.Context) *Event {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		e.TraceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		e.SpanID = sc.SpanID().String()
	}
	return e
}
