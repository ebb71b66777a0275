package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/admitgw/internal/observability"
)

// ============================================================
// TestMetrics_VisibleOnSharedRegistry
// ============================================================

func TestMetrics_VisibleOnSharedRegistry(t *testing.T) {
	t.Parallel()

	gw := observability.NewMetrics("sharedns")
	m := NewMetricsWithRegisterer("sharedns", gw.Registerer())

	m.RecordDecision("rejected", time.Millisecond)
	m.RecordReject(RejectAuthRequired)

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sharedns_auth_requests_total")
	assert.Contains(t, body, "sharedns_auth_rejects_total")
	assert.Contains(t, body, `kind="AUTH_REQUIRED"`)
}
