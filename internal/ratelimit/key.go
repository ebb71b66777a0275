package ratelimit

import (
	"net/http"

	"github.com/avolkov/admitgw/internal/auth"
)

// KeyFunc extracts the rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// AnonymousKeyPrefix prefixes keys derived from network addresses for
// requests without an authenticated subject.
const AnonymousKeyPrefix = "anon:"

// SubjectKeyFunc returns a KeyFunc that keys on the authenticated
// subject from the request context, falling back to an anonymous
// bucket keyed by client address.
func SubjectKeyFunc(extractor *auth.ClientIPExtractor) KeyFunc {
	return func(r *http.Request) string {
		if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
			return claims.SubjectID
		}
		return AnonymousKeyPrefix + extractor.Extract(r)
	}
}

// IPKeyFunc returns a KeyFunc that keys on the client address only.
func IPKeyFunc(extractor *auth.ClientIPExtractor) KeyFunc {
	return func(r *http.Request) string {
		return AnonymousKeyPrefix + extractor.Extract(r)
	}
}
