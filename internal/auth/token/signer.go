package token

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/avolkov/admitgw/internal/auth"
)

// Signer mints HS256 bearer tokens carrying the admission claims.
type Signer struct {
	config *Config
	key    []byte
}

// NewSigner creates a new token signer sharing the verifier's
// configuration rules.
func NewSigner(config *Config) (*Signer, error) {
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

	return &Signer{
		config: config,
		key:    []byte(config.Secret),
	}, nil
}

// Sign mints a signed token for the given claims using the configured
// issuer and lifetime.
func (s *Signer) Sign(claims *auth.Claims) (string, error) {
	return s.SignWithTTL(claims, s.config.TokenTTL)
}

// SignWithTTL mints a signed token with an explicit lifetime.
func (s *Signer) SignWithTTL(claims *auth.Claims, ttl time.Duration) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("claims are required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	builder := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(claims.SubjectID).
		IssuedAt(now).
		Expiration(now.Add(ttl))

	if s.config.Issuer != "" {
		builder = builder.Issuer(s.config.Issuer)
	}
	if claims.DisplayName != "" {
		builder = builder.Claim(claimName, claims.DisplayName)
	}
	if claims.IsAdmin {
		builder = builder.Claim(claimAdmin, true)
	}
	if len(claims.Permissions) > 0 {
		builder = builder.Claim(claimPermissions, claims.Permissions)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}
