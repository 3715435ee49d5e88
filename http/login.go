package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/stephnangue/vortex/audit"
	"github.com/stephnangue/vortex/auth"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/identity"
	"github.com/stephnangue/vortex/logger"
)

// LoginRequest represents the request body for POST /v1/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a freshly issued token. The token is bound to the
// User-Agent header of the login request.
type LoginResponse struct {
	Token        string    `json:"token"`
	CredentialID string    `json:"credential_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

func handleLogin(authority *token.Authority, dir identity.Directory, rec *auditor, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := parseJSONRequest(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		ctx := r.Context()
		entry := audit.Entry{
			Type:           audit.EventLogin,
			Subject:        req.Username,
			BindingContext: auth.BindingContext(r),
		}
		refuse := func(status int, msg, cause string) {
			entry.Outcome = audit.OutcomeDenied
			if status >= http.StatusInternalServerError {
				entry.Outcome = audit.OutcomeError
			}
			entry.Error = cause
			rec.record(r, entry)
			respondError(w, status, msg)
		}

		if err := dir.VerifyPassword(ctx, req.Username, req.Password); err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				log.Info("login rejected", logger.String("subject", req.Username))
				refuse(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error(), "invalid credentials")
				return
			}
			log.Error("password verification failed", logger.String("subject", req.Username), logger.Err(err))
			refuse(http.StatusServiceUnavailable, msgUnavailable, "identity unavailable")
			return
		}

		// a login always sees the current account state
		if inv, ok := dir.(identity.Invalidator); ok {
			inv.Invalidate(req.Username)
		}

		id, err := dir.LoadRoles(ctx, req.Username)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			refuse(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error(), "unknown subject")
			return
		case err != nil:
			log.Error("failed to load roles", logger.String("subject", req.Username), logger.Err(err))
			refuse(http.StatusServiceUnavailable, msgUnavailable, "identity unavailable")
			return
		case !id.Enabled:
			log.Warn("login refused for disabled account", logger.String("subject", req.Username))
			refuse(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error(), "account disabled")
			return
		}

		issued, err := authority.Issue(ctx, req.Username, auth.BindingContext(r))
		if err != nil {
			if errors.Is(err, token.ErrEmptySubject) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			refuse(http.StatusServiceUnavailable, msgUnavailable, "issuance failed")
			return
		}

		entry.Outcome = audit.OutcomeSuccess
		entry.CredentialID = issued.CredentialID
		rec.record(r, entry)

		respondOk(w, &LoginResponse{
			Token:        issued.Token,
			CredentialID: issued.CredentialID,
			ExpiresAt:    issued.ExpiresAt,
		})
	}
}

func handleLogout(authority *token.Authority, rec *auditor, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := auth.BearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		entry := audit.Entry{
			Type:           audit.EventLogout,
			Outcome:        audit.OutcomeDenied,
			BindingContext: auth.BindingContext(r),
		}
		if p := auth.FromContext(r.Context()); p != nil {
			entry.Subject = p.Subject
		}

		err := authority.Invalidate(r.Context(), tok)
		switch {
		case err == nil:
			entry.Outcome = audit.OutcomeSuccess
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, token.ErrUnauthenticated):
			entry.Error = "unauthenticated"
			respondError(w, http.StatusUnauthorized, msgUnauthenticated)
		case errors.Is(err, token.ErrNotFound):
			entry.Error = "credential not found"
			respondError(w, http.StatusNotFound, "credential not found")
		default:
			log.Error("logout failed", logger.Err(err))
			entry.Outcome = audit.OutcomeError
			entry.Error = "store unavailable"
			respondError(w, http.StatusServiceUnavailable, msgUnavailable)
		}
		rec.record(r, entry)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := auth.FromContext(r.Context())
		roles := p.Roles
		if roles == nil {
			roles = []string{}
		}
		respondOk(w, &MeResponse{Subject: p.Subject, Roles: roles})
	}
}
