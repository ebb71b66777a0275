package auth

import (
	"fmt"
	"time"
)

// Config represents the authentication gate configuration.
type Config struct {
	// Enabled enables authentication. Disabling it is an explicit
	// operational override and is logged loudly at construction.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Secret is the token signing secret. Required when Enabled;
	// must be at least MinSecretLength bytes.
	Secret string `yaml:"secret,omitempty" json:"-"`

	// Issuer is the expected token issuer.
	Issuer string `yaml:"issuer,omitempty" json:"issuer,omitempty"`

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `yaml:"tokenTTL,omitempty" json:"tokenTTL,omitempty"`

	// PublicPaths is the list of path patterns exempt from
	// authentication. Patterns are anchored regular expressions.
	PublicPaths []string `yaml:"publicPaths,omitempty" json:"publicPaths,omitempty"`

	// TrustedProxies is the list of proxy CIDRs whose X-Forwarded-For
	// headers are honored when extracting client addresses.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler with merge semantics so a
// partial auth section refines the defaults instead of zeroing them.
// TokenTTL accepts time.ParseDuration syntax ("30m", "1h").
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Enabled        *bool    `yaml:"enabled"`
		Secret         string   `yaml:"secret"`
		Issuer         string   `yaml:"issuer"`
		TokenTTL       string   `yaml:"tokenTTL"`
		PublicPaths    []string `yaml:"publicPaths"`
		TrustedProxies []string `yaml:"trustedProxies"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.Secret != "" {
		c.Secret = raw.Secret
	}
	if raw.Issuer != "" {
		c.Issuer = raw.Issuer
	}
	if raw.TokenTTL != "" {
		ttl, err := time.ParseDuration(raw.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid tokenTTL: %w", err)
		}
		c.TokenTTL = ttl
	}
	if raw.PublicPaths != nil {
		c.PublicPaths = raw.PublicPaths
	}
	if raw.TrustedProxies != nil {
		c.TrustedProxies = raw.TrustedProxies
	}

	return nil
}

// Validate validates the authentication configuration. A missing or
// weak secret while authentication is enabled is a startup-fatal
// defect: the process must not serve traffic with a broken
// authenticator.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	if c.Secret == "" {
		return ErrMissingSecret
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("%w: got %d bytes, need at least %d",
			ErrWeakSecret, len(c.Secret), MinSecretLength)
	}

	return nil
}

// DefaultConfig returns a default authentication configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:  true,
		TokenTTL: time.Hour,
		PublicPaths: []string{
			"/healthz",
			"/metrics",
		},
	}
}
