package login

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

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "from-env", body["password"])
		assert.Equal(t, api.DefaultUserAgent, r.Header.Get("User-Agent"))

		_ = json.NewEncoder(w).Encode(api.LoginResponse{
			Token:        "signed.jwt.token",
			CredentialID: "cred-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	t.Setenv(api.EnvVortexToken, "")
	t.Setenv(EnvPassword, "from-env")
	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	cfg.MaxRetries = 0
	client, err := api.NewClient(cfg)
	require.NoError(t, err)
	helpers.SetClient(client)
	t.Cleanup(func() { helpers.SetClient(nil) })

	var out bytes.Buffer
	LoginCmd.SetOut(&out)
	LoginCmd.SetArgs([]string{"-u", "alice"})
	require.NoError(t, LoginCmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "export VORTEX_TOKEN=signed.jwt.token")
	assert.Contains(t, out.String(), "cred-1")
	assert.Equal(t, "signed.jwt.token", client.Token())
}

func TestLogin_RequiresUsername(t *testing.T) {
	flagUsername = ""
	LoginCmd.SetOut(&bytes.Buffer{})
	LoginCmd.SetErr(&bytes.Buffer{})
	LoginCmd.SetArgs([]string{})
	err := LoginCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is required")
}
