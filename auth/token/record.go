package token

import (
	"context"
	"time"
)

// Record is the server-side state of one issued credential.
type Record struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	BindingContext string    `json:"binding_context"`
	Enabled        bool      `json:"enabled"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Clone returns a copy safe to hand to callers.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Store persists credential records. Implementations must be safe for
// concurrent use, and Disable must be linearizable with Get for the same id.
//
// Get and Disable return ErrNotFound for unknown ids. Other failures wrap
// ErrStoreUnavailable.
type Store interface {
	// Create generates a fresh id and persists an enabled record.
	Create(ctx context.Context, subject, bindingContext string, issuedAt, expiresAt time.Time) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Disable clears the enabled flag. Disabling a disabled record succeeds
	// without writing.
	Disable(ctx context.Context, id string) (*Record, error)
	FindBySubject(ctx context.Context, subject string, p Pagination) (*Page, error)
}
