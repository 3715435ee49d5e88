// Package auth turns the credential presented on an inbound request into an
// authenticated Principal.
package auth

import (
	"context"
	"slices"
)

// Principal is the authenticated caller of a request. Enabled is the
// account-level flag from the identity resolver, independent of the
// credential's own state.
type Principal struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
	Enabled bool     `json:"enabled"`
}

// HasRole reports whether the principal holds role. Role names are case
// sensitive.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the authenticator, or nil for
// an unauthenticated request.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
