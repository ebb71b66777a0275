package audit

import (
	"errors"
	"fmt"
)

// Config represents the audit recording configuration.
type Config struct {
	// Enabled enables audit recording.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output specifies the output destination (stdout, stderr, file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// BufferSize is the size of the in-flight event buffer. Events
	// arriving while the buffer is full are dropped, never waited on.
	BufferSize int `yaml:"bufferSize,omitempty" json:"bufferSize,omitempty"`
}

// Validate validates the audit configuration.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.BufferSize < 0 {
		return errors.New("bufferSize must be non-negative")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required when audit is enabled")
	}
	return nil
}

// DefaultConfig returns a default audit configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		Output:     "stdout",
		BufferSize: 1024,
	}
}

// GetEffectiveBufferSize returns the buffer size, applying the default
// when unset.
func (c *Config) GetEffectiveBufferSize() int {
	if c == nil || c.BufferSize <= 0 {
		return 1024
	}
	return c.BufferSize
}
