package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AccessTokens manages the credentials issued to a subject.
type AccessTokens struct {
	c *Client
}

func (c *Client) AccessTokens() *AccessTokens {
	return &AccessTokens{c: c}
}

// AccessToken is the server-side record of one issued credential. The token
// itself is never returned.
type AccessToken struct {
	ID             string    `json:"id"`
	Subject        string    `json:"subject"`
	BindingContext string    `json:"binding_context"`
	Enabled        bool      `json:"enabled"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type AccessTokenPage struct {
	Records []*AccessToken `json:"records"`
	Page    int            `json:"page"`
	Size    int            `json:"size"`
	Total   int64          `json:"total"`
}

// ListOptions selects a page. Zero values use the server defaults.
type ListOptions struct {
	Page  int
	Size  int
	Sort  string
	Order string
}

func (a *AccessTokens) List(ctx context.Context, subject string, opts *ListOptions) (*AccessTokenPage, error) {
	r := a.c.NewRequest(http.MethodGet, "/v1/users/"+url.PathEscape(subject)+"/access-tokens")
	if opts != nil {
		if opts.Page > 0 {
			r.Params.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.Size > 0 {
			r.Params.Set("size", strconv.Itoa(opts.Size))
		}
		if opts.Sort != "" {
			r.Params.Set("sort", opts.Sort)
		}
		if opts.Order != "" {
			r.Params.Set("order", opts.Order)
		}
	}

	var out AccessTokenPage
	if err := a.c.doJSON(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Revoke disables one of subject's credentials by id.
func (a *AccessTokens) Revoke(ctx context.Context, subject, id string) error {
	r := a.c.NewRequest(http.MethodDelete,
		"/v1/users/"+url.PathEscape(subject)+"/access-tokens/"+url.PathEscape(id))
	return a.c.doJSON(ctx, r, nil)
}
