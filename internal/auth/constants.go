package auth

// HTTP header constants.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderUserAgent is the User-Agent header name.
	HeaderUserAgent = "User-Agent"

	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderWWWAuthenticate is the WWW-Authenticate header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// BearerPrefix is the required Authorization scheme prefix. The prefix
// is case-sensitive and followed by exactly one space.
const BearerPrefix = "Bearer "

// RequiredFormat is the header format reported to clients on scheme
// violations.
const RequiredFormat = "Bearer <token>"

// MinSecretLength is the minimum accepted signing secret length in
// bytes. Construction fails when authentication is enabled with a
// shorter secret.
const MinSecretLength = 32
