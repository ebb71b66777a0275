package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/observability"
	"github.com/avolkov/admitgw/internal/pathmatch"
)

// TokenVerifier verifies a bearer token and returns decoded claims.
// Implementations do not need to distinguish failure causes (expired,
// malformed, signature mismatch) to the gate.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Gate handles authentication for HTTP requests. It is the first stage
// of the admission pipeline: public paths bypass it, everything else
// must carry a valid bearer token.
type Gate interface {
	// Authenticate authenticates an HTTP request.
	Authenticate(r *http.Request) (*Claims, error)

	// RegisterPublicPath adds a public route pattern at runtime.
	RegisterPublicPath(pattern string) error

	// Middleware returns an HTTP middleware for authentication.
	Middleware() func(http.Handler) http.Handler
}

// gate implements the Gate interface.
type gate struct {
	config   *Config
	matcher  *pathmatch.Matcher
	verifier TokenVerifier
	recorder audit.Recorder
	clientIP *ClientIPExtractor
	logger   observability.Logger
	metrics  *Metrics
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

// WithGateMatcher sets the public path matcher, overriding the one
// built from config.PublicPaths.
func WithGateMatcher(matcher *pathmatch.Matcher) GateOption {
	return func(g *gate) {
		g.matcher = matcher
	}
}

// NewGate creates a new authentication gate. Construction fails when
// authentication is enabled but the configured secret is missing or
// below the minimum strength threshold; the process must not start
// with a broken authenticator.
func NewGate(config *Config, verifier TokenVerifier, opts ...GateOption) (Gate, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Enabled && verifier == nil {
		return nil, ErrNilVerifier
	}

	g := &gate{
		config:   config,
		verifier: verifier,
		recorder: audit.NewNopRecorder(),
		clientIP: NewClientIPExtractor(config.TrustedProxies),
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.matcher == nil {
		g.matcher = pathmatch.NewMatcher(config.PublicPaths,
			pathmatch.WithMatcherLogger(g.logger))
	}
	if g.metrics == nil {
		g.metrics = NewMetrics("admitgw")
	}

	if !config.Enabled {
		// Explicit operational override, never a silent default.
		g.logger.Warn("authentication is DISABLED; all requests pass through unauthenticated")
	}

	return g, nil
}

// Authenticate authenticates an HTTP request. It terminates at the
// first failure and returns a RejectError describing the outcome.
func (g *gate) Authenticate(r *http.Request) (*Claims, error) {
	start := time.Now()
	ctx := r.Context()

	if !g.config.Enabled {
		return nil, nil
	}

	if g.matcher.Classify(r.URL.Path) {
		return nil, nil
	}

	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		err := NewRejectError(RejectAuthRequired, "authorization header required", ErrMissingHeader)
		g.observe(ctx, r, start, nil, err)
		return nil, err
	}

	if !strings.HasPrefix(header, BearerPrefix) {
		err := NewRejectError(RejectInvalidTokenFormat,
			"authorization header must use the Bearer scheme", ErrMalformedHeader)
		g.observe(ctx, r, start, nil, err)
		return nil, err
	}

	token := header[len(BearerPrefix):]
	claims, verifyErr := g.verifier.Verify(ctx, token)
	if verifyErr != nil {
		err := NewRejectError(RejectTokenInvalid, "token validation failed", verifyErr)
		g.observe(ctx, r, start, nil, err)
		return nil, err
	}

	g.observe(ctx, r, start, claims, nil)
	return claims, nil
}

// observe emits metrics and the audit event for a terminal outcome.
// The audit sink is best-effort: its unavailability never affects the
// admission decision.
func (g *gate) observe(ctx context.Context, r *http.Request, start time.Time, claims *Claims, err error) {
	if err == nil {
		g.metrics.RecordDecision("success", time.Since(start))
		g.recorder.Record(ctx, audit.NewEvent(audit.EventAuthSuccess, claims.Subject(), true).
			WithClientInfo(g.clientIP.Extract(r), r.Header.Get(HeaderUserAgent)))
		return
	}

	kind := RejectKindOf(err)
	g.metrics.RecordDecision("failure", time.Since(start))
	g.metrics.RecordReject(kind)

	eventType := audit.EventAuthFailure
	switch kind {
	case RejectAuthRequired:
		eventType = audit.EventAuthMissing
	case RejectInvalidTokenFormat:
		eventType = audit.EventAuthMalformed
	}

	g.recorder.Record(ctx, audit.NewEvent(eventType, AnonymousSubject, false).
		WithClientInfo(g.clientIP.Extract(r), r.Header.Get(HeaderUserAgent)).
		WithError(err.Error()))
}

// RegisterPublicPath adds a public route pattern at runtime. The
// pattern takes effect for subsequent classifications only.
func (g *gate) RegisterPublicPath(pattern string) error {
	return g.matcher.Register(pattern)
}

// Middleware returns an HTTP middleware for authentication. On success
// the verified claims are attached to the request context for the
// downstream gates and the final handler.
func (g *gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := g.Authenticate(r)
			if err != nil {
				g.handleReject(w, r, err)
				return
			}

			if claims != nil {
				ctx := ContextWithClaims(r.Context(), claims)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rejectBody is the JSON body returned on authentication rejection.
type rejectBody struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	RequiredFormat string `json:"required_format,omitempty"`
}

// handleReject writes the 401 response for a terminal rejection.
func (g *gate) handleReject(w http.ResponseWriter, r *http.Request, err error) {
	kind := RejectKindOf(err)

	g.logger.WithContext(r.Context()).Warn("authentication rejected",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("kind", string(kind)),
		observability.Error(err),
	)

	body := rejectBody{Error: "Unauthorized"}
	switch kind {
	case RejectAuthRequired:
		body.Message = "authorization header required"
		w.Header().Set(HeaderWWWAuthenticate, "Bearer")
	case RejectInvalidTokenFormat:
		body.Message = "invalid authorization header format"
		body.RequiredFormat = RequiredFormat
	default:
		body.Message = "token validation failed"
	}

	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(body)
}

// Ensure gate implements Gate.
var _ Gate = (*gate)(nil)
