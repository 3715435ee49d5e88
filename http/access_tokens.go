package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stephnangue/vortex/audit"
	"github.com/stephnangue/vortex/auth"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/logger"
)

// parsePagination reads page, size, sort and order from the query string.
// Missing values fall back to token.DefaultPagination.
func parsePagination(r *http.Request) (token.Pagination, error) {
	q := r.URL.Query()
	p := token.DefaultPagination()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > token.MaxPage {
			return p, fmt.Errorf("page must be an integer between 0 and %d", token.MaxPage)
		}
		p.Page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, errors.New("size must be a positive integer")
		}
		p.Size = n
	}
	if v := q.Get("sort"); v != "" {
		p.Sort = v
	}
	switch strings.ToLower(q.Get("order")) {
	case "":
	case "asc":
		p.Descending = false
	case "desc":
		p.Descending = true
	default:
		return p, errors.New("order must be asc or desc")
	}
	return p, nil
}

func handleListAccessTokens(authority *token.Authority, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := chi.URLParam(r, "subject")
		p, err := parsePagination(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		page, err := authority.ListCredentials(r.Context(), subject, p)
		if err != nil {
			if errors.Is(err, token.ErrInvalidSort) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error("failed to list credentials", logger.String("subject", subject), logger.Err(err))
			respondError(w, http.StatusServiceUnavailable, msgUnavailable)
			return
		}
		if page.Records == nil {
			page.Records = []*token.Record{}
		}
		respondOk(w, page)
	}
}

func handleRevokeAccessToken(authority *token.Authority, rec *auditor, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := chi.URLParam(r, "subject")
		id := chi.URLParam(r, "id")

		entry := audit.Entry{
			Type:         audit.EventRevoke,
			Outcome:      audit.OutcomeDenied,
			Owner:        subject,
			CredentialID: id,
		}
		if p := auth.FromContext(r.Context()); p != nil {
			entry.Subject = p.Subject
		}
		defer func() { rec.record(r, entry) }()

		err := authority.RevokeCredential(r.Context(), subject, id)
		switch {
		case err == nil:
			entry.Outcome = audit.OutcomeSuccess
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, token.ErrNotFound):
			entry.Error = "credential not found"
			respondError(w, http.StatusNotFound, "credential not found")
		default:
			entry.Outcome = audit.OutcomeError
			entry.Error = "store unavailable"
			log.Error("failed to revoke credential",
				logger.String("subject", subject),
				logger.String("credential_id", id),
				logger.Err(err))
			respondError(w, http.StatusServiceUnavailable, msgUnavailable)
		}
	}
}
