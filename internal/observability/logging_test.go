package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// TestNewLogger
// ============================================================

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "json info", cfg: LogConfig{Level: "info", Format: "json"}},
		{name: "console debug", cfg: LogConfig{Level: "debug", Format: "console"}},
		{name: "stderr output", cfg: LogConfig{Level: "warn", Format: "json", Output: "stderr"}},
		{name: "invalid level", cfg: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)

			logger.Debug("debug message", String("k", "v"))
			logger.Info("info message", Int("n", 1))
			logger.Warn("warn message", Bool("flag", true))
			logger.Error("error message", Error(nil))
		})
	}
}

// ============================================================
// TestLogger_WithContext
// ============================================================

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	// No request ID in context returns the same logger.
	assert.Same(t, logger, logger.WithContext(context.Background()))

	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.NotSame(t, logger, logger.WithContext(ctx))
}

// ============================================================
// TestGlobalLogger
// ============================================================

func TestGlobalLogger(t *testing.T) {
	logger := NopLogger()
	SetGlobalLogger(logger)
	assert.Same(t, logger, GetGlobalLogger())
}
