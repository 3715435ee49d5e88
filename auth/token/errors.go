package token

import (
	"errors"
)

var (
	// ErrUnauthenticated is the only failure callers of Validate can observe.
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrNotFound         = errors.New("credential not found")
	ErrSigning          = errors.New("token signing failed")
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token has expired")
	ErrEmptySubject     = errors.New("subject must not be empty")
	ErrInvalidSort      = errors.New("unsupported sort field")
)

// Reason is the internal cause of a rejected credential. It is recorded in
// logs and metrics and never returned to a client.
type Reason string

const (
	ReasonMalformed        Reason = "malformed"
	ReasonExpired          Reason = "expired"
	ReasonNotFound         Reason = "not-found"
	ReasonRevoked          Reason = "revoked"
	ReasonContextMismatch  Reason = "context-mismatch"
	ReasonStoreUnavailable Reason = "store-unavailable"
)

// ValidationError reports why a credential was rejected. Its message and
// Unwrap chain expose only ErrUnauthenticated.
type ValidationError struct {
	Reason       Reason
	CredentialID string
	Cause        error
}

func (e *ValidationError) Error() string {
	return ErrUnauthenticated.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrUnauthenticated
}

// ReasonOf extracts the internal reason from err, or "" if err is not a
// ValidationError.
func ReasonOf(err error) Reason {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}

func reject(reason Reason, id string, cause error) error {
	return &ValidationError{Reason: reason, CredentialID: id, Cause: cause}
}
