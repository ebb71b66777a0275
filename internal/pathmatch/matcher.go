// Package pathmatch classifies request paths against a set of public
// route patterns so the authentication gate can bypass them.
package pathmatch

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/avolkov/admitgw/internal/observability"
)

// Matcher answers whether a request path is public, i.e. exempt from
// authentication. Patterns are anchored regular expressions over the
// request path. Compilation happens exactly once regardless of how many
// goroutines call Classify concurrently; patterns registered later are
// compiled at registration time.
type Matcher struct {
	logger observability.Logger

	compileOnce sync.Once
	pending     []string

	mu       sync.RWMutex
	compiled []*regexp.Regexp
	sources  map[string]struct{}
}

// MatcherOption is a functional option for the matcher.
type MatcherOption func(*Matcher)

// WithMatcherLogger sets the logger.
func WithMatcherLogger(logger observability.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// NewMatcher creates a matcher over the given public route patterns.
// Compilation is deferred to the first Classify call.
func NewMatcher(patterns []string, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		logger:  observability.NopLogger(),
		pending: append([]string(nil), patterns...),
		sources: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Classify reports whether path matches any public route pattern.
// The first matching pattern wins; match semantics are an OR over the
// whole set, so the result does not depend on pattern order.
func (m *Matcher) Classify(path string) bool {
	m.compileOnce.Do(m.compilePending)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, re := range m.compiled {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Register adds a public route pattern at runtime. The pattern takes
// effect for subsequent classifications; in-flight requests are not
// reclassified. Registering a pattern that is already present is a
// no-op, so re-delivering a full pattern set does not grow the
// matcher.
func (m *Matcher) Register(pattern string) error {
	anchored := anchor(pattern)
	re, err := regexp.Compile(anchored)
	if err != nil {
		return fmt.Errorf("invalid public route pattern %q: %w", pattern, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[anchored]; ok {
		return nil
	}
	m.sources[anchored] = struct{}{}
	m.compiled = append(m.compiled, re)
	return nil
}

// Patterns returns the source patterns of all compiled entries.
func (m *Matcher) Patterns() []string {
	m.compileOnce.Do(m.compilePending)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.compiled))
	for _, re := range m.compiled {
		result = append(result, re.String())
	}
	return result
}

// compilePending compiles the patterns supplied at construction time.
// A malformed pattern is skipped with a warning; it never prevents the
// remaining patterns from loading.
func (m *Matcher) compilePending() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pattern := range m.pending {
		anchored := anchor(pattern)
		re, err := regexp.Compile(anchored)
		if err != nil {
			m.logger.Warn("skipping malformed public route pattern",
				observability.String("pattern", pattern),
				observability.Error(err),
			)
			continue
		}
		if _, ok := m.sources[anchored]; ok {
			continue
		}
		m.sources[anchored] = struct{}{}
		m.compiled = append(m.compiled, re)
	}
	m.pending = nil
}

// anchor ensures the pattern matches the full path.
func anchor(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}
