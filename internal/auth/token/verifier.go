// Package token provides the HMAC bearer-token verifier and signer
// used by the authentication gate.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/avolkov/admitgw/internal/auth"
	"github.com/avolkov/admitgw/internal/observability"
)

// Claim names mapped into auth.Claims.
const (
	claimName        = "name"
	claimAdmin       = "admin"
	claimPermissions = "permissions"
)

// Config represents token verification configuration.
type Config struct {
	// Secret is the HMAC signing secret. Must be at least
	// auth.MinSecretLength bytes.
	Secret string

	// Issuer is the expected token issuer. Empty skips the check.
	Issuer string

	// TokenTTL is the lifetime applied to issued tokens.
	TokenTTL time.Duration

	// ClockSkew is the acceptable clock skew during validation.
	ClockSkew time.Duration
}

// Verifier verifies HS256 bearer tokens and maps their claims.
type Verifier struct {
	config *Config
	key    []byte
	logger observability.Logger
}

// VerifierOption is a functional option for the verifier.
type VerifierOption func(*Verifier)

// WithVerifierLogger sets the logger.
func WithVerifierLogger(logger observability.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a new token verifier. Construction fails on a
// missing or weak secret.
func NewVerifier(config *Config, opts ...VerifierOption) (*Verifier, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Secret == "" {
		return nil, auth.ErrMissingSecret
	}
	if len(config.Secret) < auth.MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d",
			auth.ErrWeakSecret, len(config.Secret), auth.MinSecretLength)
	}

	v := &Verifier{
		config: config,
		key:    []byte(config.Secret),
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify verifies a token and returns the decoded claims. All failure
// causes (malformed token, bad signature, expired, wrong issuer) are
// reported uniformly; the gate does not need to distinguish them.
func (v *Verifier) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	parseOpts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.config.ClockSkew),
	}
	if v.config.Issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.config.Issuer))
	}

	tok, err := jwt.Parse([]byte(token), parseOpts...)
	if err != nil {
		v.logger.Debug("token verification failed", observability.Error(err))
		return nil, fmt.Errorf("%w: %w", auth.ErrVerificationFailed, err)
	}

	return mapClaims(tok), nil
}

// mapClaims maps the verified token claims into auth.Claims.
func mapClaims(tok jwt.Token) *auth.Claims {
	var displayName string
	if raw, ok := tok.Get(claimName); ok {
		if s, ok := raw.(string); ok {
			displayName = s
		}
	}

	var isAdmin bool
	if raw, ok := tok.Get(claimAdmin); ok {
		if b, ok := raw.(bool); ok {
			isAdmin = b
		}
	}

	var permissions []string
	if raw, ok := tok.Get(claimPermissions); ok {
		switch values := raw.(type) {
		case []string:
			permissions = values
		case []interface{}:
			for _, value := range values {
				if s, ok := value.(string); ok {
					permissions = append(permissions, s)
				}
			}
		}
	}

	return auth.NewClaims(tok.Subject(), displayName, isAdmin, permissions)
}

// Ensure Verifier satisfies the gate's dependency.
var _ auth.TokenVerifier = (*Verifier)(nil)
