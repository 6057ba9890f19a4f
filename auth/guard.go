package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/authguard/internal/jwtauth"
	"github.com/ggoodman/authguard/principals"
)

// GuardOption configures optional aspects of a Guard.
type GuardOption func(*guardConfig)

type guardConfig struct {
	log           *slog.Logger
	lookupTimeout time.Duration
}

// WithLogger sets the logger for authentication events. Credentials are
// never logged.
func WithLogger(l *slog.Logger) GuardOption {
	return func(c *guardConfig) { c.log = l }
}

// WithLookupTimeout bounds each principal lookup in addition to any deadline
// already on the request context.
func WithLookupTimeout(d time.Duration) GuardOption {
	return func(c *guardConfig) { c.lookupTimeout = d }
}

// Guard runs the authentication pipeline for one request at a time:
// extract, verify, decode and validate, resolve. It holds only immutable
// configuration and is safe for concurrent use.
type Guard struct {
	verifier      jwtauth.Verifier
	store         principals.Store
	subjectClaim  string
	log           *slog.Logger
	lookupTimeout time.Duration
}

var _ Authenticator = (*Guard)(nil)

// NewGuard builds a Guard from cfg and the principal store. ctx bounds any
// startup network activity (JWKS fetch, OIDC discovery) and the lifetime of
// background key refresh.
func NewGuard(ctx context.Context, cfg Config, store principals.Store, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		return nil, errors.New("principal store is required")
	}
	c := cfg.Copy()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	gc := guardConfig{log: slog.Default()}
	for _, opt := range opts {
		opt(&gc)
	}

	v, err := jwtauth.New(ctx, c.jwtConfig())
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}

	return &Guard{
		verifier:      v,
		store:         store,
		subjectClaim:  c.SubjectClaim,
		log:           gc.log,
		lookupTimeout: gc.lookupTimeout,
	}, nil
}

// Authenticate implements Authenticator. A missing header yields
// Unauthenticated(); every credential problem yields an error wrapping
// ErrUnauthorized; store failures yield an error wrapping ErrInternal.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (AuthContext, error) {
	tok, err := ExtractBearer(authorization)
	if errors.Is(err, ErrNoCredential) {
		g.log.DebugContext(ctx, "auth.check.missing")
		return Unauthenticated(), nil
	}
	if err != nil {
		return AuthContext{}, g.reject(ctx, "extract", err)
	}

	if err := g.verifier.Verify(ctx, tok); err != nil {
		return AuthContext{}, g.reject(ctx, "verify", err)
	}

	claims, err := jwtauth.DecodeClaims(tok)
	if err != nil {
		return AuthContext{}, g.reject(ctx, "decode", err)
	}
	id, err := jwtauth.SubjectFromClaims(claims, g.subjectClaim)
	if err != nil {
		return AuthContext{}, g.reject(ctx, "validate", err)
	}

	p, err := g.resolve(ctx, id)
	if err != nil {
		return AuthContext{}, err
	}

	g.log.DebugContext(ctx, "auth.check.ok", slog.String("principal_id", p.ID.String()))
	return Authenticated(p), nil
}

func (g *Guard) resolve(ctx context.Context, id principals.ID) (principals.Principal, error) {
	if g.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.lookupTimeout)
		defer cancel()
	}

	p, err := g.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			return principals.Principal{}, g.reject(ctx, "resolve", err)
		}
		g.log.ErrorContext(ctx, "auth.resolve.fail", slog.String("principal_id", id.String()), slog.String("err", err.Error()))
		return principals.Principal{}, fmt.Errorf("%w: principal lookup: %w", ErrInternal, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (g *Guard) reject(ctx context.Context, stage string, err error) error {
	g.log.InfoContext(ctx, "auth.check.fail", slog.String("stage", stage), slog.String("err", err.Error()))
	if errors.Is(err, ErrUnauthorized) {
		return err
	}
	return errors.Join(ErrUnauthorized, err)
}
