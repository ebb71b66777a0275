package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// syncBuffer is a goroutine-safe bytes.Buffer for the worker to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// failingWriter always errors.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink unavailable")
}

// ============================================================
// TestRecorder_WritesJSONLines
// ============================================================

func TestRecorder_WritesJSONLines(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	rec, err := NewRecorder(&Config{Enabled: true, Output: "stdout", BufferSize: 16},
		WithRecorderWriter(buf))
	require.NoError(t, err)

	rec.Record(context.Background(),
		NewEvent(EventAuthSuccess, "user-1", true).
			WithClientInfo("203.0.113.7", "curl/8.0"))
	rec.Record(context.Background(),
		NewEvent(EventRateLimited, "user-2", false).
			WithError("rate limit exceeded in per_minute"))

	require.NoError(t, rec.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, EventAuthSuccess, first.Type)
	assert.Equal(t, "user-1", first.Subject)
	assert.True(t, first.Success)
	assert.Equal(t, "203.0.113.7", first.IPAddress)
	assert.Equal(t, "curl/8.0", first.UserAgent)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	var second Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, EventRateLimited, second.Type)
	assert.False(t, second.Success)
	assert.Equal(t, "rate limit exceeded in per_minute", second.ErrorMessage)
}

// ============================================================
// TestRecorder_Disabled
// ============================================================

func TestRecorder_Disabled(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	rec, err := NewRecorder(&Config{Enabled: false},
		WithRecorderWriter(buf))
	require.NoError(t, err)

	rec.Record(context.Background(), NewEvent(EventAuthSuccess, "user-1", true))
	require.NoError(t, rec.Close())

	assert.Empty(t, buf.String())
}

// ============================================================
// TestRecorder_NilEvent
// ============================================================

func TestRecorder_NilEvent(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	rec, err := NewRecorder(&Config{Enabled: true, Output: "stdout"},
		WithRecorderWriter(buf))
	require.NoError(t, err)

	rec.Record(context.Background(), nil)
	require.NoError(t, rec.Close())

	assert.Empty(t, buf.String())
}

// ============================================================
// TestRecorder_SinkFailureIsSwallowed
// ============================================================

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	rec, err := NewRecorder(&Config{Enabled: true, Output: "stdout", BufferSize: 16},
		WithRecorderWriter(failingWriter{}))
	require.NoError(t, err)

	// Enough consecutive failures to trip the breaker; none of them
	// may surface to the caller.
	for i := 0; i < 10; i++ {
		rec.Record(context.Background(), NewEvent(EventAuthFailure, "user-1", false))
	}

	assert.NoError(t, rec.Close())
}

// ============================================================
// TestRecorder_TraceContext
// ============================================================

func TestRecorder_TraceContext(t *testing.T) {
	t.Parallel()

	buf := &syncBuffer{}
	rec, err := NewRecorder(&Config{Enabled: true, Output: "stdout"},
		WithRecorderWriter(buf))
	require.NoError(t, err)

	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	rec.Record(ctx, NewEvent(EventAuthSuccess, "user-1", true))
	require.NoError(t, rec.Close())

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event))
	assert.Equal(t, traceID.String(), event.TraceID)
	assert.Equal(t, spanID.String(), event.SpanID)
}

// ============================================================
// TestNopRecorder
// ============================================================

func TestNopRecorder(t *testing.T) {
	t.Parallel()

	rec := NewNopRecorder()
	rec.Record(context.Background(), NewEvent(EventAuthSuccess, "user-1", true))
	assert.NoError(t, rec.Close())
}

// ============================================================
// TestConfig_Validate
// ============================================================

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, (&Config{Enabled: false}).Validate())
	assert.Error(t, (&Config{Enabled: true}).Validate())
	assert.Error(t, (&Config{Enabled: true, Output: "stdout", BufferSize: -1}).Validate())
	assert.Equal(t, 1024, (&Config{}).GetEffectiveBufferSize())
	assert.Equal(t, 64, (&Config{BufferSize: 64}).GetEffectiveBufferSize())
}
