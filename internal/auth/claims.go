package auth

import (
	"context"
	"errors"
)

// Claims represents the verified identity attributes derived from a
// presented token. Constructed once per request by the TokenVerifier,
// immutable afterwards, and scoped to the lifetime of that request.
type Claims struct {
	// SubjectID is the unique identifier of the authenticated principal.
	SubjectID string `json:"sub"`

	// DisplayName is a human-readable identifier, used only for logging.
	DisplayName string `json:"name,omitempty"`

	// IsAdmin bypasses all permission checks when true.
	IsAdmin bool `json:"admin,omitempty"`

	// Permissions is the set of "resource:action" strings granted to
	// the principal. Order is irrelevant and duplicates collapse.
	Permissions []string `json:"permissions,omitempty"`
}

// AnonymousSubject is the subject reported for unauthenticated requests.
const AnonymousSubject = "anonymous"

// NewClaims creates claims with a deduplicated permission set.
func NewClaims(subjectID, displayName string, isAdmin bool, permissions []string) *Claims {
	seen := make(map[string]struct{}, len(permissions))
	deduped := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		deduped = append(deduped, p)
	}

	return &Claims{
		SubjectID:   subjectID,
		DisplayName: displayName,
		IsAdmin:     isAdmin,
		Permissions: deduped,
	}
}

// HasPermission checks if the claims include a specific permission.
func (c *Claims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission checks if the claims include any of the given
// permissions.
func (c *Claims) HasAnyPermission(permissions ...string) bool {
	for _, permission := range permissions {
		if c.HasPermission(permission) {
			return true
		}
	}
	return false
}

// Subject returns the subject ID, or "anonymous" for nil claims.
func (c *Claims) Subject() string {
	if c == nil || c.SubjectID == "" {
		return AnonymousSubject
	}
	return c.SubjectID
}

// claimsContextKey is the context key type for request claims.
type claimsContextKey struct{}

// ContextWithClaims attaches claims to the request context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the claims from the context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return claims, ok
}

// ErrClaimsNotFound is returned when claims are not found in context.
var ErrClaimsNotFound = errors.New("claims not found in context")

// ClaimsFromContextOrError extracts the claims from the context or
// returns ErrClaimsNotFound.
func ClaimsFromContextOrError(ctx context.Context) (*Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims == nil {
		return nil, ErrClaimsNotFound
	}
	return claims, nil
}
