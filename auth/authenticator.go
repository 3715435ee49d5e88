package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/identity"
	"github.com/stephnangue/vortex/logger"
)

// BindingHeader carries the client agent string a credential is bound to.
const BindingHeader = "User-Agent"

// TokenValidator is the part of the token authority the authenticator needs.
type TokenValidator interface {
	Validate(ctx context.Context, token, bindingContext string) (string, error)
}

// Authenticator resolves a request's bearer credential to a Principal. It
// holds no per-request state and is safe for concurrent use.
//
// Failures never propagate: a request whose credential is missing, invalid,
// or whose account is disabled simply continues without a principal and the
// authorization layer decides what that means for the route.
type Authenticator struct {
	tokens   TokenValidator
	resolver identity.Resolver
	logger   logger.Logger
}

func NewAuthenticator(tokens TokenValidator, resolver identity.Resolver, log logger.Logger) *Authenticator {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Authenticator{tokens: tokens, resolver: resolver, logger: log}
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// BindingContext returns the value a credential presented on r must be bound to.
func BindingContext(r *http.Request) string {
	return r.Header.Get(BindingHeader)
}

// Authenticate validates tok for bindingContext and loads the subject's
// roles. It returns false whenever the caller should be treated as
// unauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, tok, bindingContext string) (*Principal, bool) {
	subject, err := a.tokens.Validate(ctx, tok, bindingContext)
	if err != nil {
		// the authority has already logged the reason
		return nil, false
	}

	id, err := a.resolver.LoadRoles(ctx, subject)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		a.logger.Warn("credential subject has no identity", logger.String("subject", subject))
		return nil, false
	case err != nil:
		a.logger.Error("failed to load roles",
			logger.String("subject", subject),
			logger.Err(err))
		return nil, false
	}

	p := &Principal{Subject: subject, Roles: id.Roles, Enabled: id.Enabled}
	if !p.Enabled {
		a.logger.Warn("credential presented for disabled account", logger.String("subject", subject))
		return nil, false
	}
	return p, true
}

// AuthenticateRequest is Authenticate over the request's headers. A request
// without a bearer credential is unauthenticated without touching the
// authority.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (*Principal, bool) {
	tok, ok := BearerToken(r)
	if !ok {
		return nil, false
	}
	return a.Authenticate(r.Context(), tok, BindingContext(r))
}

// Middleware attaches the principal to the request context when the request
// authenticates, and passes it through untouched otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.AuthenticateRequest(r); ok {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

var _ TokenValidator = (*token.Authority)(nil)
