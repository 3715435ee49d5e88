package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/stephnangue/vortex/audit"
	"github.com/stephnangue/vortex/auth"
	"github.com/stephnangue/vortex/auth/token"
	"github.com/stephnangue/vortex/authorize"
	"github.com/stephnangue/vortex/helper"
	"github.com/stephnangue/vortex/identity"
	"github.com/stephnangue/vortex/logger"
	"golang.org/x/time/rate"
)

const (
	maxRequestSize = 64 * 1024

	msgUnauthenticated = "not authenticated"
	msgUnavailable     = "temporarily unavailable, try again"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Authority     *token.Authority
	Authenticator *auth.Authenticator
	Directory     identity.Directory
	Logger        logger.Logger

	// Audit receives login, logout and revocation events. May be nil.
	Audit *audit.Broker

	// MetricsSink backs GET /v1/sys/metrics. The route is not registered
	// when nil.
	MetricsSink *metrics.InmemSink

	// LoginRate is the sustained number of login attempts allowed per
	// client IP per second. Zero disables limiting.
	LoginRate  rate.Limit
	LoginBurst int
}

// Handler creates and returns the main HTTP handler for Vortex.
func Handler(props *HandlerProperties) (http.Handler, error) {
	log := props.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	rec := &auditor{broker: props.Audit, log: log}

	limiter, err := newLoginLimiter(props.LoginRate, props.LoginBurst, defaultLimiterClients)
	if err != nil {
		return nil, err
	}

	guard := authorize.Guard{Deny: deny}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(logRequests(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(props.Authenticator.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "unsupported path")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(limiter.middleware).Post("/login", handleLogin(props.Authority, props.Directory, rec, log))
		r.Post("/logout", handleLogout(props.Authority, rec, log))
		r.With(guard.RequireAuthenticated()).Get("/me", handleMe())

		r.Route("/users/{subject}/access-tokens", func(r chi.Router) {
			r.Use(guard.RequireSelfOrRole("subject", identity.AdminRole))
			r.Get("/", handleListAccessTokens(props.Authority, log))
			r.Delete("/{id}", handleRevokeAccessToken(props.Authority, rec, log))
		})

		r.Get("/sys/health", handleHealth())
		if props.MetricsSink != nil {
			r.With(guard.RequireRole(identity.AdminRole)).Get("/sys/metrics", handleMetrics(props.MetricsSink, log))
		}
	})

	return r, nil
}

func deny(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, authorize.ErrUnauthenticated) {
		respondError(w, http.StatusUnauthorized, msgUnauthenticated)
		return
	}
	respondError(w, http.StatusForbidden, "permission denied")
}

// requestID tags every request with a ULID, keeping a caller-supplied id when
// present, and exposes it the same way chi's RequestID middleware does.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = helper.GenerateRequestID()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func logRequests(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.Status()),
				logger.String("client_ip", helper.ClientIP(r)),
				logger.Duration("duration", time.Since(start)))
		})
	}
}

// auditor stamps entries with request metadata before handing them to the
// broker. Audit failures are logged and never fail the request.
type auditor struct {
	broker *audit.Broker
	log    logger.Logger
}

func (a *auditor) record(r *http.Request, e audit.Entry) {
	if a.broker == nil {
		return
	}
	e.RequestID = middleware.GetReqID(r.Context())
	e.ClientIP = helper.ClientIP(r)
	if err := a.broker.Log(r.Context(), &e); err != nil {
		a.log.Warn("failed to record audit entry",
			logger.String("event", e.Type),
			logger.String("request_id", e.RequestID),
			logger.Err(err))
	}
}
