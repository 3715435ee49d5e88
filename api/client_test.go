package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	config := DefaultConfig()
	if config.Error != nil {
		t.Fatalf("DefaultConfig: %v", config.Error)
	}
	config.Address = srv.URL
	config.MinRetryWait = time.Millisecond
	config.MaxRetryWait = 5 * time.Millisecond

	client, err := NewClient(config)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.ClearToken()
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(EnvVortexAddress, "")
	t.Setenv(EnvVortexMaxRetries, "")

	config := DefaultConfig()
	if config.Error != nil {
		t.Fatalf("unexpected error in config: %v", config.Error)
	}
	if config.Address != "http://127.0.0.1:8400" {
		t.Errorf("expected default address, got %s", config.Address)
	}
	if config.MaxRetries != 2 {
		t.Errorf("expected MaxRetries 2, got %d", config.MaxRetries)
	}
	if config.UserAgent != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, config.UserAgent)
	}
}

func TestReadEnvironment(t *testing.T) {
	t.Setenv(EnvVortexAddress, "https://vortex.example.com:8400")
	t.Setenv(EnvVortexMaxRetries, "5")
	t.Setenv(EnvVortexClientTimeout, "30")
	t.Setenv(EnvRateLimit, "10:20")

	config := DefaultConfig()
	if config.Error != nil {
		t.Fatalf("unexpected error: %v", config.Error)
	}
	if config.Address != "https://vortex.example.com:8400" {
		t.Errorf("address not read from env: %s", config.Address)
	}
	if config.MaxRetries != 5 {
		t.Errorf("expected MaxRetries 5, got %d", config.MaxRetries)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", config.Timeout)
	}
	if config.Limiter == nil || config.Limiter.Burst() != 20 {
		t.Errorf("expected limiter with burst 20")
	}
}

func TestReadEnvironment_Invalid(t *testing.T) {
	t.Setenv(EnvVortexMaxRetries, "many")
	if err := DefaultConfig().Error; err == nil {
		t.Fatal("expected error for invalid max retries")
	}
}

func TestNewClient_TokenFromEnv(t *testing.T) {
	t.Setenv(EnvVortexToken, "env-token")
	client, err := NewClient(nil)
	if err != nil {
		t.Fatal(err)
	}
	if client.Token() != "env-token" {
		t.Errorf("expected token from env, got %q", client.Token())
	}
}

func TestSetAddress(t *testing.T) {
	client, err := NewClient(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.SetAddress("ftp://nope"); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if err := client.SetAddress("http://10.0.0.1:9000"); err != nil {
		t.Fatal(err)
	}
	if client.Address() != "http://10.0.0.1:9000" {
		t.Errorf("unexpected address %s", client.Address())
	}
}

func TestLoginMeLogout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login must not carry a token")
		}
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string][]string{"errors": {"invalid username or password"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":         "tok-1",
			"credential_id": "cred-1",
			"expires_at":    time.Now().Add(time.Hour),
		})
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			writeJSON(w, http.StatusUnauthorized, map[string][]string{"errors": {"not authenticated"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subject": "alice", "roles": []string{"USER"}})
	})
	mux.HandleFunc("POST /v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	_, err := client.Auth().Login(ctx, "alice", "wrong")
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
	re := err.(*ResponseError)
	if len(re.Errors) != 1 || re.Errors[0] != "invalid username or password" {
		t.Errorf("unexpected errors %v", re.Errors)
	}

	resp, err := client.Auth().Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if resp.CredentialID != "cred-1" || client.Token() != "tok-1" {
		t.Fatalf("login did not set token: %+v", resp)
	}

	me, err := client.Auth().Me(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if me.Subject != "alice" {
		t.Errorf("unexpected subject %q", me.Subject)
	}

	if err := client.Auth().Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if client.Token() != "" {
		t.Error("logout should clear the token")
	}
	if err := client.Auth().Logout(ctx); err == nil {
		t.Error("logout without token should fail")
	}
}

func TestAccessTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/{subject}/access-tokens", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.PathValue("subject") != "alice" || q.Get("size") != "5" || q.Get("order") != "asc" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []map[string]any{{"id": "cred-1", "subject": "alice", "enabled": true}},
			"page":    0,
			"size":    5,
			"total":   1,
		})
	})
	mux.HandleFunc("DELETE /v1/users/{subject}/access-tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "cred-1" {
			writeJSON(w, http.StatusNotFound, map[string][]string{"errors": {"credential not found"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestClient(t, mux)
	client.SetToken("tok")
	ctx := context.Background()

	page, err := client.AccessTokens().List(ctx, "alice", &ListOptions{Size: 5, Order: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Records) != 1 || page.Records[0].ID != "cred-1" {
		t.Errorf("unexpected page %+v", page)
	}

	if err := client.AccessTokens().Revoke(ctx, "alice", "cred-1"); err != nil {
		t.Fatal(err)
	}
	if err := client.AccessTokens().Revoke(ctx, "alice", "cred-2"); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string][]string{"errors": {"temporarily unavailable, try again"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	health, err := client.Sys().Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || calls.Load() != 3 {
		t.Errorf("expected success on third try, got %+v after %d calls", health, calls.Load())
	}
}

func TestNoRetryOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string][]string{"errors": {"too many login attempts"}})
	}))

	_, err := client.Auth().Login(context.Background(), "alice", "pw")
	if !IsStatus(err, http.StatusTooManyRequests) {
		t.Fatalf("expected 429, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}
