// Package config loads and validates the gateway process
// configuration from a YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avolkov/admitgw/internal/audit"
	"github.com/avolkov/admitgw/internal/auth"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "ADMITGW_"

// Config is the root process configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Auth configures the authentication gate.
	Auth *auth.Config `yaml:"auth"`

	// RateLimit configures the rate limiter.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// Audit configures audit recording.
	Audit *audit.Config `yaml:"audit"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// PublicPatternsFile is an optional file holding additional public
	// route patterns, one per line, hot-reloaded at runtime.
	PublicPatternsFile string `yaml:"publicPatternsFile,omitempty"`
}

// RateLimitConfig configures the rate limiter.
type RateLimitConfig struct {
	// PerMinute, PerHour, PerDay are the default per-client limits.
	// Zero or negative means unbounded for that granularity.
	PerMinute int `yaml:"perMinute"`
	PerHour   int `yaml:"perHour"`
	PerDay    int `yaml:"perDay"`

	// SweepInterval is how often idle client records are swept.
	SweepInterval Duration `yaml:"sweepInterval"`

	// Retention is how long idle, empty client records are kept.
	Retention Duration `yaml:"retention"`

	// GlobalRPS caps process-wide requests per second; zero disables
	// the global guard.
	GlobalRPS int `yaml:"globalRPS"`

	// GlobalBurst is the burst size for the global guard.
	GlobalBurst int `yaml:"globalBurst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		Auth:   auth.DefaultConfig(),
		RateLimit: RateLimitConfig{
			PerMinute:     60,
			PerHour:       1000,
			PerDay:        10000,
			SweepInterval: Duration(time.Hour),
			Retention:     Duration(24 * time.Hour),
		},
		Audit: audit.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file, applies environment overrides,
// and validates the result. An empty path loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path from trusted flag
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPrefix + "LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	if c.Auth == nil {
		c.Auth = auth.DefaultConfig()
	}
	if v := os.Getenv(EnvPrefix + "AUTH_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Auth.Enabled = enabled
		}
	}
	if v := os.Getenv(EnvPrefix + "AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv(EnvPrefix + "AUTH_ISSUER"); v != "" {
		c.Auth.Issuer = v
	}
	if v := os.Getenv(EnvPrefix + "AUTH_TOKEN_TTL_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			c.Auth.TokenTTL = time.Duration(seconds) * time.Second
		}
	}
	if v := os.Getenv(EnvPrefix + "AUTH_PUBLIC_PATHS"); v != "" {
		c.Auth.PublicPaths = splitAndTrim(v)
	}

	if v := os.Getenv(EnvPrefix + "RATELIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.PerMinute = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RATELIMIT_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.PerHour = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RATELIMIT_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.PerDay = n
		}
	}
}

// splitAndTrim splits a comma-separated list and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate validates the configuration. Configuration defects are
// startup-fatal; the process must not serve traffic with them.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit config: %w", err)
	}

	if c.RateLimit.SweepInterval < 0 {
		return fmt.Errorf("rateLimit config: sweepInterval must be non-negative")
	}
	if c.RateLimit.Retention < 0 {
		return fmt.Errorf("rateLimit config: retention must be non-negative")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log config: invalid format %q", c.Log.Format)
	}

	return nil
}
