package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication operations.
var (
	// ErrMissingHeader indicates that no Authorization header was provided.
	ErrMissingHeader = errors.New("authorization header required")

	// ErrMalformedHeader indicates that the Authorization header does not
	// use the Bearer scheme.
	ErrMalformedHeader = errors.New("malformed authorization header")

	// ErrVerificationFailed indicates that token verification failed.
	ErrVerificationFailed = errors.New("token verification failed")

	// ErrWeakSecret indicates that the signing secret is below the
	// minimum strength threshold.
	ErrWeakSecret = errors.New("signing secret below minimum length")

	// ErrMissingSecret indicates that no signing secret was configured.
	ErrMissingSecret = errors.New("signing secret is required")

	// ErrNilVerifier indicates that the gate was constructed without a
	// token verifier while authentication is enabled.
	ErrNilVerifier = errors.New("token verifier is required")
)

// RejectKind identifies the terminal authentication outcome for
// observability. All kinds receive identical 401 treatment.
type RejectKind string

// Rejection kinds.
const (
	RejectAuthRequired       RejectKind = "AUTH_REQUIRED"
	RejectInvalidTokenFormat RejectKind = "INVALID_TOKEN_FORMAT"
	RejectTokenInvalid       RejectKind = "TOKEN_VALIDATION_FAILED"
)

// RejectError is a terminal authentication rejection with its kind.
type RejectError struct {
	Kind    RejectKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth rejected (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth rejected (%s): %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *RejectError) Unwrap() error {
	return e.Cause
}

// NewRejectError creates a rejection of the given kind.
func NewRejectError(kind RejectKind, message string, cause error) *RejectError {
	return &RejectError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// RejectKindOf returns the rejection kind carried by err, or
// RejectTokenInvalid when err is not a RejectError.
func RejectKindOf(err error) RejectKind {
	var rejectErr *RejectError
	if errors.As(err, &rejectErr) {
		return rejectErr.Kind
	}
	return RejectTokenInvalid
}
