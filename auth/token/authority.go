package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stephnangue/vortex/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTTL = time.Hour

	tracerName = "github.com/stephnangue/vortex/auth/token"
)

// Issued is the result of a successful Issue.
type Issued struct {
	Token        string    `json:"token"`
	CredentialID string    `json:"credential_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Authority couples signature verification with the server-side credential
// record. It is the only place where both are consulted together.
type Authority struct {
	signer  Signer
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  logger.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(*Authority)

func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for issued-at, expiry and the
// store-side expiry check. The signer keeps its own clock.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(a *Authority) { a.metrics = m }
}

func NewAuthority(signer Signer, store Store, log logger.Logger, opts ...Option) (*Authority, error) {
	if signer == nil {
		return nil, errors.New("token authority requires a signer")
	}
	if store == nil {
		return nil, errors.New("token authority requires a credential store")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	a := &Authority{
		signer:  signer,
		store:   store,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  log.WithSubsystem("token"),
		metrics: NewMetrics(nil),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.logger.Debug("token authority initialized", logger.Duration("ttl", a.ttl))
	return a, nil
}

func (a *Authority) TTL() time.Duration { return a.ttl }

// Issue creates the credential record and then signs a token for it. If the
// record cannot be stored no token is produced.
func (a *Authority) Issue(ctx context.Context, subject, bindingContext string) (*Issued, error) {
	ctx, span := a.tracer.Start(ctx, "token.Issue")
	defer span.End()

	if subject == "" {
		return nil, a.issueFailed(span, ErrEmptySubject)
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)

	record, err := a.store.Create(ctx, subject, bindingContext, now, expiresAt)
	if err != nil {
		a.logger.Error("failed to create credential record",
			logger.String("subject", subject),
			logger.Err(err))
		return nil, a.issueFailed(span, fmt.Errorf("creating credential record: %w", err))
	}
	span.SetAttributes(attribute.String("vortex.credential_id", record.ID))

	signed, err := a.signer.Sign(Claims{
		ID:        record.ID,
		Subject:   record.Subject,
		IssuedAt:  record.IssuedAt,
		ExpiresAt: record.ExpiresAt,
	})
	if err != nil {
		a.logger.Error("failed to sign credential",
			logger.String("credential_id", record.ID),
			logger.Err(err))
		// the record stays behind enabled but unreachable; no token references it
		return nil, a.issueFailed(span, err)
	}

	a.metrics.IncrementIssued()
	a.logger.Debug("credential issued",
		logger.String("credential_id", record.ID),
		logger.String("subject", record.Subject),
		logger.Time("expires_at", record.ExpiresAt))

	return &Issued{
		Token:        signed,
		CredentialID: record.ID,
		IssuedAt:     record.IssuedAt,
		ExpiresAt:    record.ExpiresAt,
	}, nil
}

func (a *Authority) issueFailed(span trace.Span, err error) error {
	a.metrics.IncrementIssueFailed()
	span.RecordError(err)
	span.SetStatus(codes.Error, "issue failed")
	return err
}

// Validate returns the subject of a usable credential. Every failure is a
// *ValidationError that unwraps to ErrUnauthenticated.
//
// Signature and expiry are checked before the store is consulted, so forged
// or stale tokens never cost a round-trip.
func (a *Authority) Validate(ctx context.Context, token, bindingContext string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "token.Validate")
	defer span.End()

	claims, err := a.signer.Verify(token)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, ErrExpired) {
			reason = ReasonExpired
		}
		return "", a.rejected(span, reject(reason, "", err))
	}
	span.SetAttributes(attribute.String("vortex.credential_id", claims.ID))

	record, err := a.store.Get(ctx, claims.ID)
	if err != nil {
		reason := ReasonStoreUnavailable
		if errors.Is(err, ErrNotFound) {
			reason = ReasonNotFound
		}
		return "", a.rejected(span, reject(reason, claims.ID, err))
	}

	switch {
	case record.Subject != claims.Subject:
		return "", a.rejected(span, reject(ReasonMalformed, record.ID, errors.New("subject does not match record")))
	case !record.Enabled:
		return "", a.rejected(span, reject(ReasonRevoked, record.ID, nil))
	case record.Expired(a.now()):
		return "", a.rejected(span, reject(ReasonExpired, record.ID, ErrExpired))
	case record.BindingContext != bindingContext:
		return "", a.rejected(span, reject(ReasonContextMismatch, record.ID, nil))
	}

	a.metrics.IncrementValidated()
	return record.Subject, nil
}

func (a *Authority) rejected(span trace.Span, err error) error {
	var verr *ValidationError
	errors.As(err, &verr)

	a.metrics.IncrementRejected(verr.Reason)
	span.SetAttributes(attribute.String("vortex.reject_reason", string(verr.Reason)))
	span.SetStatus(codes.Error, ErrUnauthenticated.Error())

	fields := []logger.TypedField{logger.String("reason", string(verr.Reason))}
	if verr.CredentialID != "" {
		fields = append(fields, logger.String("credential_id", verr.CredentialID))
	}
	if verr.Cause != nil {
		fields = append(fields, logger.Err(verr.Cause))
	}

	switch verr.Reason {
	case ReasonRevoked, ReasonContextMismatch:
		a.logger.Warn("credential rejected", fields...)
	case ReasonStoreUnavailable:
		a.logger.Error("credential rejected", fields...)
	default:
		a.logger.Debug("credential rejected", fields...)
	}
	return err
}

// Invalidate disables the record behind token. The binding context is not
// checked: logging out is allowed from any client holding the token.
//
// Tokens that fail verification return a *ValidationError (ErrUnauthenticated)
// and nothing is disabled. A verified token without a record returns
// ErrNotFound.
func (a *Authority) Invalidate(ctx context.Context, token string) error {
	ctx, span := a.tracer.Start(ctx, "token.Invalidate")
	defer span.End()

	claims, err := a.signer.Verify(token)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, ErrExpired) {
			reason = ReasonExpired
		}
		return a.rejected(span, reject(reason, "", err))
	}
	span.SetAttributes(attribute.String("vortex.credential_id", claims.ID))

	if _, err := a.store.Get(ctx, claims.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("looking up credential: %w", err)
	}

	return a.disable(ctx, span, claims.ID)
}

func (a *Authority) disable(ctx context.Context, span trace.Span, id string) error {
	record, err := a.store.Disable(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "disable failed")
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		a.logger.Error("failed to disable credential", logger.String("credential_id", id), logger.Err(err))
		return fmt.Errorf("disabling credential: %w", err)
	}

	a.metrics.IncrementInvalidated()
	a.logger.Info("credential invalidated",
		logger.String("credential_id", record.ID),
		logger.String("subject", record.Subject))
	return nil
}

// ListCredentials returns a page of the subject's credential records.
func (a *Authority) ListCredentials(ctx context.Context, subject string, p Pagination) (*Page, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	return a.store.FindBySubject(ctx, subject, p)
}

// RevokeCredential disables a credential by id on behalf of its owner. An id
// that belongs to a different subject is reported as ErrNotFound.
func (a *Authority) RevokeCredential(ctx context.Context, subject, id string) error {
	ctx, span := a.tracer.Start(ctx, "token.RevokeCredential")
	defer span.End()

	record, err := a.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("looking up credential: %w", err)
	}
	if record.Subject != subject {
		return ErrNotFound
	}
	return a.disable(ctx, span, id)
}
