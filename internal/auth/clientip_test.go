package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================
// TestClientIPExtractor_Extract
// ============================================================

func TestClientIPExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		trustedProxies []string
		remoteAddr     string
		xff            string
		expected       string
	}{
		{
			name:       "no trusted proxies uses remote addr",
			remoteAddr: "192.0.2.1:12345",
			xff:        "203.0.113.50",
			expected:   "192.0.2.1",
		},
		{
			name:           "trusted proxy honors forwarded chain",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.0.0.5:443",
			xff:            "203.0.113.50, 10.0.0.9",
			expected:       "203.0.113.50",
		},
		{
			name:           "untrusted remote ignores header",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "198.51.100.1:443",
			xff:            "203.0.113.50",
			expected:       "198.51.100.1",
		},
		{
			name:           "fully trusted chain falls back",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.0.0.5:443",
			xff:            "10.0.0.1, 10.0.0.2",
			expected:       "10.0.0.5",
		},
		{
			name:           "single ip trusted proxy",
			trustedProxies: []string{"10.0.0.5"},
			remoteAddr:     "10.0.0.5:443",
			xff:            "203.0.113.50",
			expected:       "203.0.113.50",
		},
		{
			name:           "invalid proxy spec skipped",
			trustedProxies: []string{"not-a-cidr"},
			remoteAddr:     "192.0.2.1:12345",
			xff:            "203.0.113.50",
			expected:       "192.0.2.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			expected:   "2001:db8::1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			extractor := NewClientIPExtractor(tt.trustedProxies)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set(HeaderXForwardedFor, tt.xff)
			}

			assert.Equal(t, tt.expected, extractor.Extract(req))
		})
	}
}
