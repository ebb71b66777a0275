package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/auth"
	"github.com/avolkov/admitgw/internal/observability"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// MiddlewareConfig holds configuration for the rate limit middleware.
type MiddlewareConfig struct {
	// Limiter is the per-client window limiter.
	Limiter *Limiter

	// Limits are the per-client limits applied at this call site.
	Limits Limits

	// KeyFunc extracts the rate limit key from the request.
	KeyFunc KeyFunc

	// Global is an optional process-wide burst smoother applied before
	// the per-client windows.
	Global *rate.Limiter

	// ClientIP resolves the client address reported on audit events.
	ClientIP *auth.ClientIPExtractor

	// Recorder receives rate_limited audit events.
	Recorder audit.Recorder

	// Logger for logging rate limit events.
	Logger observability.Logger
}

// Middleware returns a middleware that applies per-client multi-window
// rate limiting. Admitted and rejected responses both carry the
// X-RateLimit headers for the reported window.
func Middleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	if config.Limiter == nil {
		config.Limiter = NewLimiter()
	}
	if config.KeyFunc == nil {
		config.KeyFunc = IPKeyFunc(auth.NewClientIPExtractor(nil))
	}
	if config.ClientIP == nil {
		config.ClientIP = auth.NewClientIPExtractor(nil)
	}
	if config.Recorder == nil {
		config.Recorder = audit.NewNopRecorder()
	}
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Global != nil && !config.Global.Allow() {
				writeOverloaded(w)
				return
			}

			key := config.KeyFunc(r)
			result := config.Limiter.Check(r.Context(), key, config.Limits)

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				config.Logger.WithContext(r.Context()).Warn("rate limit exceeded",
					observability.String("key", key),
					observability.String("window", result.Window),
					observability.String("path", r.URL.Path),
				)
				config.Recorder.Record(r.Context(),
					audit.NewEvent(audit.EventRateLimited, subjectOf(r), false).
						WithClientInfo(config.ClientIP.Extract(r), r.Header.Get(auth.HeaderUserAgent)).
						WithError("rate limit exceeded in "+result.Window))
				writeRejected(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders writes the X-RateLimit headers for the reported
// window. The limit header is omitted when the window is unbounded.
func setRateLimitHeaders(w http.ResponseWriter, result *Result) {
	if result.Limit > 0 {
		w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	}
	if result.Remaining != UnlimitedRemaining {
		w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	}
	w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt, 10))
}

// writeRejected writes the 429 response carrying the full result so a
// well-behaved client can back off correctly.
func writeRejected(w http.ResponseWriter, result *Result) {
	retryAfter := result.ResetAt - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}
	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(result)
}

// writeOverloaded writes the 429 response for the global guard.
func writeOverloaded(w http.ResponseWriter) {
	w.Header().Set(auth.HeaderContentType, auth.ContentTypeJSON)
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate limit exceeded",
		"message": "server is overloaded, retry later",
	})
}

// subjectOf returns the authenticated subject for audit purposes.
func subjectOf(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		return claims.SubjectID
	}
	return auth.AnonymousSubject
}
