// Package guardgrpc adapts the authentication pipeline to gRPC servers. The
// bearer token is read from the "authorization" metadata key.
package guardgrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/guardhttp"
	"github.com/ggoodman/authguard/internal/logctx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationKey = "authorization"

// Option configures the interceptors in this package.
type Option func(*config)

type config struct {
	log           *slog.Logger
	metrics       *guardhttp.Metrics
	publicMethods []string
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *guardhttp.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithPublicMethods exempts full method names (e.g.
// "/grpc.health.v1.Health/Check") from the require-authenticated check.
func WithPublicMethods(methods ...string) Option {
	return func(c *config) { c.publicMethods = append(c.publicMethods, methods...) }
}

func newConfig(opts []Option) config {
	c := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	c.log = logctx.Wrap(c.log)
	return c
}

// UnaryServerInterceptor runs authn once per call and attaches the outcome
// to the handler's context. Calls without a credential proceed as
// unauthenticated.
func UnaryServerInterceptor(authn auth.Authenticator, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, cfg, authn, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor(authn auth.Authenticator, opts ...Option) grpc.StreamServerInterceptor {
	cfg := newConfig(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), cfg, authn, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// RequireAuthenticatedUnary refuses calls that did not resolve to a
// principal with codes.Unauthenticated. It must be chained after
// UnaryServerInterceptor.
func RequireAuthenticatedUnary(opts ...Option) grpc.UnaryServerInterceptor {
	cfg := newConfig(opts)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := require(ctx, cfg, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RequireAuthenticatedStream is the streaming counterpart of
// RequireAuthenticatedUnary.
func RequireAuthenticatedStream(opts ...Option) grpc.StreamServerInterceptor {
	cfg := newConfig(opts)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := require(ss.Context(), cfg, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// Status converts an authentication error to a gRPC status error. Credential
// failures map to codes.Unauthenticated and everything else to
// codes.Internal; messages are fixed so causes never reach the client.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrUnauthorized) && !errors.Is(err, auth.ErrInternal) {
		return status.Error(codes.Unauthenticated, "Unauthorized")
	}
	return status.Error(codes.Internal, "Internal Server Error")
}

func authenticate(ctx context.Context, cfg config, authn auth.Authenticator, method string) (context.Context, error) {
	if auth.FromContext(ctx).State() != auth.StateUnset {
		return ctx, nil
	}
	if logctx.RequestIDFrom(ctx) == "" {
		ctx = logctx.WithRequestData(ctx, &logctx.RequestData{Method: "grpc", Path: method})
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(authorizationKey); len(vals) > 0 {
			header = vals[0]
		}
	}

	ac, err := authn.Authenticate(ctx, header)
	cfg.metrics.ObserveAuthentication(ac, err)
	if err != nil {
		logError(ctx, cfg, err)
		return ctx, Status(err)
	}

	ad := &logctx.AuthData{State: ac.State().String()}
	if p, ok := ac.Principal(); ok {
		ad.PrincipalID = p.ID.String()
	}
	ctx, err = auth.WithAuthContext(logctx.WithAuthData(ctx, ad), ac)
	if err != nil {
		err = fmt.Errorf("%w: %w", auth.ErrInternal, err)
		logError(ctx, cfg, err)
		return ctx, Status(err)
	}
	return ctx, nil
}

func require(ctx context.Context, cfg config, method string) error {
	if slices.Contains(cfg.publicMethods, method) {
		return nil
	}
	if err := auth.RequireContext(ctx); err != nil {
		cfg.metrics.ObserveRejection()
		cfg.log.InfoContext(ctx, "grpc.unauthenticated", slog.String("method", method))
		return Status(err)
	}
	return nil
}

func logError(ctx context.Context, cfg config, err error) {
	if errors.Is(err, auth.ErrUnauthorized) && !errors.Is(err, auth.ErrInternal) {
		cfg.log.InfoContext(ctx, "grpc.auth.fail", slog.String("err", err.Error()))
		return
	}
	cfg.log.ErrorContext(ctx, "grpc.auth.error", slog.String("err", err.Error()))
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
