package authorize

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stephnangue/vortex/auth"
	"github.com/stretchr/testify/assert"
)

var (
	alice = &auth.Principal{Subject: "alice", Roles: []string{"USER"}}
	root  = &auth.Principal{Subject: "root", Roles: []string{"ADMIN"}}
)

func TestChecks(t *testing.T) {
	assert.ErrorIs(t, Authenticated(nil), ErrUnauthenticated)
	assert.NoError(t, Authenticated(alice))

	assert.ErrorIs(t, Role(nil, "ADMIN"), ErrUnauthenticated)
	assert.ErrorIs(t, Role(alice, "ADMIN"), ErrForbidden)
	assert.NoError(t, Role(root, "ADMIN"))

	assert.ErrorIs(t, SelfOrRole(nil, "alice", "ADMIN"), ErrUnauthenticated)
	assert.NoError(t, SelfOrRole(alice, "alice", "ADMIN"))
	assert.ErrorIs(t, SelfOrRole(alice, "bob", "ADMIN"), ErrForbidden)
	assert.NoError(t, SelfOrRole(root, "bob", "ADMIN"))
}

func serve(h http.Handler, p *auth.Principal, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if p != nil {
		r = r.WithContext(auth.WithPrincipal(r.Context(), p))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestGuard_SelfOrRole(t *testing.T) {
	g := Guard{}
	router := chi.NewRouter()
	router.With(g.RequireSelfOrRole("subject", "ADMIN")).
		Get("/users/{subject}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	tests := []struct {
		name      string
		principal *auth.Principal
		path      string
		want      int
	}{
		{"anonymous", nil, "/users/alice", http.StatusUnauthorized},
		{"self", alice, "/users/alice", http.StatusOK},
		{"other user", alice, "/users/bob", http.StatusForbidden},
		{"admin", root, "/users/bob", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(router, tt.principal, tt.path).Code)
		})
	}
}

func TestGuard_CustomDeny(t *testing.T) {
	var denied error
	g := Guard{Deny: func(w http.ResponseWriter, r *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusTeapot)
	}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	w := serve(g.RequireAuthenticated()(ok), nil, "/")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, denied, ErrUnauthenticated)

	w = serve(g.RequireRole("ADMIN")(ok), alice, "/")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.ErrorIs(t, denied, ErrForbidden)

	w = serve(g.RequireRole("ADMIN")(ok), root, "/")
	assert.Equal(t, http.StatusOK, w.Code)
}
