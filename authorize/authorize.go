// Package authorize decides whether the principal attached to a request may
// reach a route.
package authorize

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stephnangue/vortex/auth"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("permission denied")
)

// DenyFunc writes the rejection for a request that failed a check. err is
// ErrUnauthenticated or ErrForbidden.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Authenticated requires a principal.
func Authenticated(p *auth.Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}
	return nil
}

// Role requires a principal holding role.
func Role(p *auth.Principal, role string) error {
	if err := Authenticated(p); err != nil {
		return err
	}
	if !p.HasRole(role) {
		return ErrForbidden
	}
	return nil
}

// SelfOrRole requires the principal to be subject, or to hold role.
func SelfOrRole(p *auth.Principal, subject, role string) error {
	if err := Authenticated(p); err != nil {
		return err
	}
	if p.Subject == subject || p.HasRole(role) {
		return nil
	}
	return ErrForbidden
}

// Guard builds route middleware from the checks above.
type Guard struct {
	Deny DenyFunc
}

func (g Guard) require(check func(r *http.Request, p *auth.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r, auth.FromContext(r.Context())); err != nil {
				g.deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) deny(w http.ResponseWriter, r *http.Request, err error) {
	if g.Deny != nil {
		g.Deny(w, r, err)
		return
	}
	status := http.StatusForbidden
	if errors.Is(err, ErrUnauthenticated) {
		status = http.StatusUnauthorized
	}
	http.Error(w, err.Error(), status)
}

func (g Guard) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.require(func(_ *http.Request, p *auth.Principal) error {
		return Authenticated(p)
	})
}

func (g Guard) RequireRole(role string) func(http.Handler) http.Handler {
	return g.require(func(_ *http.Request, p *auth.Principal) error {
		return Role(p, role)
	})
}

// RequireSelfOrRole compares the principal against the chi URL parameter
// named param.
func (g Guard) RequireSelfOrRole(param, role string) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request, p *auth.Principal) error {
		return SelfOrRole(p, chi.URLParam(r, param), role)
	})
}
