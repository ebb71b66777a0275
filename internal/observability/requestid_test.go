package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// TestRequestIDMiddleware
// ============================================================

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates an ID when the client sends none", func(t *testing.T) {
		t.Parallel()

		var seen string
		handler := RequestIDMiddleware()(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/whoami", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
	})

	t.Run("honors a client-supplied ID", func(t *testing.T) {
		t.Parallel()

		var seen string
		handler := RequestIDMiddleware()(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

		req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
		req.Header.Set(HeaderRequestID, "req-abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-abc-123", seen)
		assert.Equal(t, "req-abc-123", rec.Header().Get(HeaderRequestID))
	})
}
