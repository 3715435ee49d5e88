package api

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Auth is used to perform authentication related operations.
type Auth struct {
	c *Client
}

// Auth is used to return the client for auth-related API calls.
func (c *Client) Auth() *Auth {
	return &Auth{c: c}
}

// LoginResponse is the result of a successful login.
type LoginResponse struct {
	Token        string    `json:"token"`
	CredentialID string    `json:"credential_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Principal is the authenticated identity behind the client's token.
type Principal struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

// Login exchanges a username and password for a token. On success the
// client's token is replaced by the new one.
func (a *Auth) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	r := a.c.NewRequest(http.MethodPost, "/v1/login")
	r.ClientToken = ""
	if err := r.SetJSONBody(map[string]string{
		"username": username,
		"password": password,
	}); err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := a.c.doJSON(ctx, r, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("server returned an empty token")
	}

	a.c.SetToken(out.Token)
	return &out, nil
}

// Logout invalidates the client's token on the server and clears it locally.
func (a *Auth) Logout(ctx context.Context) error {
	if a.c.Token() == "" {
		return errors.New("no token to log out")
	}
	r := a.c.NewRequest(http.MethodPost, "/v1/logout")
	if err := a.c.doJSON(ctx, r, nil); err != nil {
		return err
	}
	a.c.ClearToken()
	return nil
}

// Me returns the principal the server resolved the client's token to.
func (a *Auth) Me(ctx context.Context) (*Principal, error) {
	r := a.c.NewRequest(http.MethodGet, "/v1/me")
	var out Principal
	if err := a.c.doJSON(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON performs r and decodes a JSON body into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, r *Request, out interface{}) error {
	resp, err := c.RawRequestWithContext(ctx, r)
	if resp != nil {
		defer resp.Close()
	}
	if err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return resp.DecodeJSON(out)
}
