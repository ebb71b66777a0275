package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// stubVerifier maps fixed token strings to claims.
type stubVerifier struct {
	tokens map[string]*Claims
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	if claims, ok := s.tokens[token]; ok {
		return claims, nil
	}
	return nil, errors.New("signature mismatch")
}

func newTestGate(t *testing.T, cfg *Config, opts ...GateOption) Gate {
	t.Helper()
	verifier := &stubVerifier{tokens: map[string]*Claims{
		"good-token":  NewClaims("user-1", "Alice", false, []string{"reports:read"}),
		"admin-token": NewClaims("user-2", "Root", true, nil),
	}}
	g, err := NewGate(cfg, verifier, opts...)
	require.NoError(t, err)
	return g
}

func testConfig() *Config {
	return &Config{
		Enabled:     true,
		Secret:      testSecret,
		PublicPaths: []string{"/healthz", "/public/.*"},
	}
}

// ============================================================
// TestNewGate_ConfigValidation
// ============================================================

func TestNewGate_ConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "missing secret",
			config:  &Config{Enabled: true},
			wantErr: ErrMissingSecret,
		},
		{
			name:    "short secret",
			config:  &Config{Enabled: true, Secret: "too-short"},
			wantErr: ErrWeakSecret,
		},
		{
			name:   "disabled gate needs no secret",
			config: &Config{Enabled: false},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewGate(tt.config, &stubVerifier{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// ============================================================
// TestNewGate_NilVerifier
// ============================================================

func TestNewGate_NilVerifier(t *testing.T) {
	t.Parallel()

	_, err := NewGate(testConfig(), nil)
	assert.ErrorIs(t, err, ErrNilVerifier)

	// A disabled gate never verifies, so nil is acceptable.
	_, err = NewGate(&Config{Enabled: false}, nil)
	assert.NoError(t, err)
}

// ============================================================
// TestGate_Authenticate
// ============================================================

func TestGate_Authenticate(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, testConfig())

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantKind   RejectKind
		wantSubj   string
	}{
		{
			name:     "missing header",
			path:     "/api/data",
			wantKind: RejectAuthRequired,
		},
		{
			name:       "wrong scheme",
			path:       "/api/data",
			authHeader: "Token abc123",
			wantKind:   RejectInvalidTokenFormat,
		},
		{
			name:       "basic scheme",
			path:       "/api/data",
			authHeader: "Basic dXNlcjpwYXNz",
			wantKind:   RejectInvalidTokenFormat,
		},
		{
			name:       "invalid token",
			path:       "/api/data",
			authHeader: "Bearer forged-token",
			wantKind:   RejectTokenInvalid,
		},
		{
			name:       "valid token",
			path:       "/api/data",
			authHeader: "Bearer good-token",
			wantSubj:   "user-1",
		},
		{
			name: "public path bypasses",
			path: "/healthz",
		},
		{
			name: "public pattern bypasses",
			path: "/public/docs",
		},
		{
			name:       "public path ignores bad credentials",
			path:       "/healthz",
			authHeader: "Bearer forged-token",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set(HeaderAuthorization, tt.authHeader)
			}

			claims, err := g.Authenticate(req)

			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, RejectKindOf(err))
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			if tt.wantSubj != "" {
				require.NotNil(t, claims)
				assert.Equal(t, tt.wantSubj, claims.SubjectID)
			} else {
				assert.Nil(t, claims)
			}
		})
	}
}

// ============================================================
// TestGate_Authenticate_Disabled
// ============================================================

func TestGate_Authenticate_Disabled(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, &Config{Enabled: false})

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	claims, err := g.Authenticate(req)

	assert.NoError(t, err)
	assert.Nil(t, claims)
}

// ============================================================
// TestGate_Middleware
// ============================================================

func TestGate_Middleware(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, testConfig())

	var seen *Claims
	handler := g.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token attaches claims", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set(HeaderAuthorization, "Bearer good-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-1", seen.SubjectID)
		assert.True(t, seen.HasPermission("reports:read"))
	})

	t.Run("public path passes without claims", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("missing header rejected with challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get(HeaderWWWAuthenticate))

		var body rejectBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "Unauthorized", body.Error)
		assert.Empty(t, body.RequiredFormat)
	})

	t.Run("malformed header names the required format", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set(HeaderAuthorization, "Token xyz")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body rejectBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, RequiredFormat, body.RequiredFormat)
	})

	t.Run("invalid token gives generic message", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set(HeaderAuthorization, "Bearer forged-token")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body rejectBody
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "token validation failed", body.Message)
		assert.False(t, strings.Contains(body.Message, "signature"),
			"rejection body must not leak verifier detail")
	})
}

// ============================================================
// TestGate_RegisterPublicPath
// ============================================================

func TestGate_RegisterPublicPath(t *testing.T) {
	t.Parallel()

	g := newTestGate(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/late/route", nil)
	_, err := g.Authenticate(req)
	require.Error(t, err)

	require.NoError(t, g.RegisterPublicPath("/late/.*"))

	claims, err := g.Authenticate(req)
	assert.NoError(t, err)
	assert.Nil(t, claims)

	assert.Error(t, g.RegisterPublicPath("/bad/[unclosed"))
}
