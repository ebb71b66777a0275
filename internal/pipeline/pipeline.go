// Package pipeline composes the admission gates around HTTP handlers.
//
// Every request passes the gates in a fixed order: authentication,
// then rate limiting, then permission checks. A rejection at any gate
// short-circuits the chain and the final handler never runs.
package pipeline

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/auth"
	"github.com/avolkov/admitgw/internal/authz"
	"github.com/avolkov/admitgw/internal/observability"
	"github.com/avolkov/admitgw/internal/ratelimit"
)

// Middleware is an HTTP middleware.
type Middleware = func(http.Handler) http.Handler

// Route declares the admission requirements of a single route.
type Route struct {
	// Permissions is the permission set for the route; the caller
	// needs any one of them. Empty means any authenticated (or, on
	// public routes, anonymous) caller.
	Permissions []string

	// Limits overrides the pipeline default per-client limits for
	// this route. Nil uses the defaults.
	Limits *ratelimit.Limits
}

// Pipeline wires the admission gates into per-route handler chains.
type Pipeline struct {
	authGate  auth.Gate
	authzGate authz.Gate
	limiter   *ratelimit.Limiter
	limits    ratelimit.Limits
	keyFunc   ratelimit.KeyFunc
	clientIP  *auth.ClientIPExtractor
	global    *rate.Limiter
	recorder  audit.Recorder
	logger    observability.Logger
}

// Option is a functional option for configuring the pipeline.
type Option func(*Pipeline)

// WithGlobalLimiter sets the process-wide burst guard applied before
// per-client limiting.
func WithGlobalLimiter(l *rate.Limiter) Option {
	return func(p *Pipeline) {
		p.global = l
	}
}

// WithRecorder sets the audit recorder shared by the gates.
func WithRecorder(recorder audit.Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithKeyFunc overrides how rate limit keys are derived.
func WithKeyFunc(fn ratelimit.KeyFunc) Option {
	return func(p *Pipeline) {
		p.keyFunc = fn
	}
}

// WithClientIP sets the extractor used to resolve client addresses
// for rate limit keys and audit events.
func WithClientIP(extractor *auth.ClientIPExtractor) Option {
	return func(p *Pipeline) {
		p.clientIP = extractor
	}
}

// New creates a pipeline from the three gates and the default
// per-client limits.
func New(
	authGate auth.Gate,
	authzGate authz.Gate,
	limiter *ratelimit.Limiter,
	limits ratelimit.Limits,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		authGate:  authGate,
		authzGate: authzGate,
		limiter:   limiter,
		limits:    limits,
		recorder:  audit.NewNopRecorder(),
		logger:    observability.GetGlobalLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.clientIP == nil {
		p.clientIP = auth.NewClientIPExtractor(nil)
	}
	if p.keyFunc == nil {
		p.keyFunc = ratelimit.SubjectKeyFunc(p.clientIP)
	}

	return p
}

// Handler wraps the handler with the full gate chain for the route.
func (p *Pipeline) Handler(route Route, handler http.Handler) http.Handler {
	limits := p.limits
	if route.Limits != nil {
		limits = *route.Limits
	}

	chain := []Middleware{
		p.authGate.Middleware(),
		ratelimit.Middleware(ratelimit.MiddlewareConfig{
			Limiter:  p.limiter,
			Limits:   limits,
			KeyFunc:  p.keyFunc,
			ClientIP: p.clientIP,
			Global:   p.global,
			Recorder: p.recorder,
			Logger:   p.logger,
		}),
		p.authzGate.Middleware(route.Permissions...),
	}

	return Chain(chain...)(handler)
}

// HandlerFunc is Handler for a plain handler function.
func (p *Pipeline) HandlerFunc(route Route, handler http.HandlerFunc) http.Handler {
	return p.Handler(route, handler)
}

// Chain composes middlewares so the first argument is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
