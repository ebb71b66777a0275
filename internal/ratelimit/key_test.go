package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avolkov/admitgw/internal/auth"
)

// ============================================================
// TestSubjectKeyFunc
// ============================================================

func TestSubjectKeyFunc(t *testing.T) {
	t.Parallel()

	keyFn := SubjectKeyFunc(auth.NewClientIPExtractor(nil))

	t.Run("authenticated subject", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		claims := auth.NewClaims("user-42", "", false, nil)
		req = req.WithContext(auth.ContextWithClaims(req.Context(), claims))

		assert.Equal(t, "user-42", keyFn(req))
	})

	t.Run("anonymous falls back to client address", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.RemoteAddr = "203.0.113.7:51234"

		assert.Equal(t, AnonymousKeyPrefix+"203.0.113.7", keyFn(req))
	})
}

// ============================================================
// TestIPKeyFunc
// ============================================================

func TestIPKeyFunc(t *testing.T) {
	t.Parallel()

	keyFn := IPKeyFunc(auth.NewClientIPExtractor(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.RemoteAddr = "198.51.100.9:40000"
	claims := auth.NewClaims("user-42", "", false, nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), claims))

	// Identity is ignored, only the address matters.
	assert.Equal(t, AnonymousKeyPrefix+"198.51.100.9", keyFn(req))
}
