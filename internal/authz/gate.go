// Package authz decides authorization for authenticated requests by
// matching the principal's permission set against a route's required
// permissions.
package authz

import (
	"encoding/json"
	"net/http"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/auth"
	"github.com/avolkov/admitgw/internal/observability"
)

// Authorize decides whether claims grant access to a route requiring
// any of the given permissions:
//
//   - admin claims are authorized unconditionally;
//   - an empty required set means no restriction and always authorizes;
//   - otherwise one possessed permission from the required set suffices.
//
// Permission strings are opaque here; "resource:action" is a caller
// convention and matching is exact string equality.
func Authorize(claims *auth.Claims, required []string) bool {
	if claims == nil {
		return len(required) == 0
	}
	if claims.IsAdmin {
		return true
	}
	if len(required) == 0 {
		return true
	}
	return claims.HasAnyPermission(required...)
}

// Gate handles authorization for HTTP requests. It runs after the
// authentication gate and reads claims from the request context.
type Gate interface {
	// Middleware returns a middleware requiring any of the given
	// permissions for the wrapped handler.
	Middleware(required ...string) func(http.Handler) http.Handler
}

// gate implements the Gate interface.
type gate struct {
	recorder audit.Recorder
	logger   observability.Logger
	metrics  *Metrics
	clientIP *auth.ClientIPExtractor
}

// GateOption is a functional option for the gate.
type GateOption func(*gate)

// WithGateLogger sets the logger.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *gate) {
		g.metrics = metrics
	}
}

// WithGateRecorder sets the audit recorder.
func WithGateRecorder(recorder audit.Recorder) GateOption {
	return func(g *gate) {
		g.recorder = recorder
	}
}

// WithGateClientIP sets the client IP extractor used for audit events.
func WithGateClientIP(extractor *auth.ClientIPExtractor) GateOption {
	return func(g *gate) {
		g.clientIP = extractor
	}
}

// NewGate creates a new permission gate.
func NewGate(opts ...GateOption) Gate {
	g := &gate{
		recorder: audit.NewNopRecorder(),
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.metrics == nil {
		g.metrics = NewMetrics("admitgw")
	}
	if g.clientIP == nil {
		g.clientIP = auth.NewClientIPExtractor(nil)
	}

	return g
}

// Middleware returns a middleware requiring any of the given
// permissions. Requests without claims in context are rejected with
// 401 unless the required set is empty; authenticated requests lacking
// every required permission are rejected with 403.
func (g *gate) Middleware(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())

			if !ok && len(required) > 0 {
				g.metrics.RecordDecision("no_identity")
				g.handleNoIdentity(w, r)
				return
			}

			if !Authorize(claims, required) {
				g.metrics.RecordDecision("denied")
				g.handleDenied(w, r, claims, required)
				return
			}

			g.metrics.RecordDecision("allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// handleNoIdentity rejects a request that reached the permission gate
// without an authenticated identity.
func (g *gate) handleNoIdentity(w http.ResponseWriter, r *http.Request) {
	g.logger.WithContext(r.Context()).Warn("authorization requires an authenticated identity",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
	)

	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthorized",
		"message": "authentication required",
	})
}

// handleDenied rejects an authenticated request lacking every required
// permission.
func (g *gate) handleDenied(w http.ResponseWriter, r *http.Request, claims *auth.Claims, required []string) {
	g.logger.WithContext(r.Context()).Warn("permission denied",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("subject", claims.Subject()),
		observability.Any("required", required),
	)

	g.recorder.Record(r.Context(),
		audit.NewEvent(audit.EventPermissionDenied, claims.Subject(), false).
			WithClientInfo(g.clientIP.Extract(r), r.Header.Get(auth.HeaderUserAgent)).
			WithError("missing required permission"))

	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Forbidden",
		"message": "insufficient permissions",
	})
}

// Ensure gate implements Gate.
var _ Gate = (*gate)(nil)
