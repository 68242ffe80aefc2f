package auth

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated matches every *AuthenticationError via errors.Is.
var ErrUnauthenticated = errors.New("unauthenticated")

// Reasons reported by AuthenticationError.
const (
	ReasonMissing     = "missing"
	ReasonMalformed   = "malformed"
	ReasonExpired     = "expired"
	ReasonInvalid     = "invalid"
	ReasonUnknownUser = "unknown_user"
	// ReasonUnavailable means the user lookup itself failed.
	ReasonUnavailable = "unavailable"
)

// AuthenticationError is returned when a credential cannot be turned into an identity.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUnauthenticated.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthenticated
}

func authError(reason string, err error) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Err: err}
}
