package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stephnangue/vortex/logger"
)

const shutdownTimeout = 30 * time.Second

type ApiListener struct {
	logger  logger.Logger
	server  *http.Server
	cfg     ApiListenerConfig
	stopped atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

type ApiListenerConfig struct {
	Logger      logger.Logger
	Address     string
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
}

func NewApiListener(cfg ApiListenerConfig, handler http.Handler) (*ApiListener, error) {
	if cfg.Address == "" {
		return nil, errors.New("listener address is required")
	}
	if cfg.TLSEnabled && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		return nil, errors.New("tls_cert_file and tls_key_file are required when TLS is enabled")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	if cfg.TLSEnabled {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &ApiListener{
		logger: cfg.Logger,
		server: server,
		cfg:    cfg,
		ready:  make(chan struct{}),
	}, nil
}

// Addr returns the bound address once the listener is up, and the configured
// address before that.
func (l *ApiListener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return l.server.Addr
}

func (l *ApiListener) Type() string {
	return "api"
}

// Ready is closed once the socket is bound.
func (l *ApiListener) Ready() <-chan struct{} {
	return l.ready
}

// Start binds the socket and serves until ctx is canceled or the server fails.
func (l *ApiListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.cfg.Address, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()
	close(l.ready)

	l.logger.Info("starting HTTP server",
		logger.String("address", ln.Addr().String()),
		logger.Bool("tls", l.cfg.TLSEnabled))

	errChan := make(chan error, 1)
	go func() {
		var err error
		if l.cfg.TLSEnabled {
			err = l.server.ServeTLS(ln, l.cfg.TLSCertFile, l.cfg.TLSKeyFile)
		} else {
			err = l.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("shutdown signal received")
		return l.Stop()
	case err := <-errChan:
		l.logger.Error("HTTP server error", logger.Err(err))
		return err
	}
}

func (l *ApiListener) Stop() error {
	if !l.stopped.CompareAndSwap(false, true) {
		l.logger.Info("HTTP server already stopped, skipping")
		return nil
	}

	l.logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := l.server.Shutdown(ctx); err != nil {
		l.logger.Error("error when shutting down the http server", logger.Err(err))
		return err
	}

	l.logger.Info("HTTP server stopped gracefully")
	return nil
}
