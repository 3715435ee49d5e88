package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stephnangue/vortex/api"
	"github.com/stephnangue/vortex/cmd/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T, mux *http.ServeMux) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv(api.EnvVortexToken, "")
	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	cfg.MaxRetries = 0
	client, err := api.NewClient(cfg)
	require.NoError(t, err)
	client.SetToken("test-token")

	helpers.SetClient(client)
	t.Cleanup(func() { helpers.SetClient(nil) })
}

func TestList_DefaultsToCaller(t *testing.T) {
	now := time.Now().UTC()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.Principal{Subject: "alice", Roles: []string{"USER"}})
	})
	mux.HandleFunc("GET /v1/users/alice/access-tokens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("size"))
		_ = json.NewEncoder(w).Encode(api.AccessTokenPage{
			Records: []*api.AccessToken{
				{ID: "cred-live", Subject: "alice", BindingContext: "laptop", Enabled: true, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
				{ID: "cred-gone", Subject: "alice", BindingContext: "phone", Enabled: false, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
			},
			Size:  5,
			Total: 2,
		})
	})
	setupClient(t, mux)

	var out bytes.Buffer
	TokensCmd.SetOut(&out)
	TokensCmd.SetArgs([]string{"list", "--size", "5"})
	require.NoError(t, TokensCmd.ExecuteContext(context.Background()))

	s := out.String()
	assert.Contains(t, s, "cred-live")
	assert.Contains(t, s, "active")
	assert.Contains(t, s, "cred-gone")
	assert.Contains(t, s, "revoked")
	assert.Contains(t, s, "2 credentials for alice")
}

func TestRevoke_ExplicitSubject(t *testing.T) {
	var revoked string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/users/bob/access-tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		revoked = r.PathValue("id")
		w.WriteHeader(http.StatusNoContent)
	})
	setupClient(t, mux)

	var out bytes.Buffer
	TokensCmd.SetOut(&out)
	TokensCmd.SetArgs([]string{"revoke", "cred-7", "--subject", "bob"})
	require.NoError(t, TokensCmd.ExecuteContext(context.Background()))

	assert.Equal(t, "cred-7", revoked)
	assert.Contains(t, out.String(), "Revoked credential cred-7")
}

func TestRevoke_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/users/bob/access-tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":["credential not found"]}`))
	})
	setupClient(t, mux)

	TokensCmd.SetOut(&bytes.Buffer{})
	TokensCmd.SetErr(&bytes.Buffer{})
	TokensCmd.SetArgs([]string{"revoke", "missing", "--subject", "bob"})
	err := TokensCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}
