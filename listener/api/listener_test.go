package api

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stephnangue/vortex/listener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ listener.Listener = (*ApiListener)(nil)

func TestNewApiListener_Validation(t *testing.T) {
	_, err := NewApiListener(ApiListenerConfig{}, http.NotFoundHandler())
	assert.Error(t, err)

	_, err = NewApiListener(ApiListenerConfig{Address: "127.0.0.1:0", TLSEnabled: true}, http.NotFoundHandler())
	assert.Error(t, err)
}

func TestApiListener_ServeAndShutdown(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	})
	l, err := NewApiListener(ApiListenerConfig{Address: "127.0.0.1:0"}, h)
	require.NoError(t, err)
	assert.Equal(t, "api", l.Type())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	select {
	case <-l.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not start")
	}

	resp, err := http.Get("http://" + l.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}

	// a second stop is a no-op
	assert.NoError(t, l.Stop())
}
