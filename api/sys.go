package api

import (
	"context"
	"net/http"
)

// Sys is used to perform system-related operations on Vortex.
type Sys struct {
	c *Client
}

// Sys is used to return the client for sys-related API calls.
func (c *Client) Sys() *Sys {
	return &Sys{c: c}
}

type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Sys) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := s.c.doJSON(ctx, s.c.NewRequest(http.MethodGet, "/v1/sys/health"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics returns the server's in-memory metrics summary. It requires the
// ADMIN role.
func (s *Sys) Metrics(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := s.c.doJSON(ctx, s.c.NewRequest(http.MethodGet, "/v1/sys/metrics"), &out); err != nil {
		return nil, err
	}
	return out, nil
}
