// Package guardgin adapts the authentication pipeline to gin. Responses use
// the same status mapping and JSON body as guardhttp.
package guardgin

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/guardhttp"
	"github.com/ggoodman/authguard/internal/logctx"
	"github.com/ggoodman/authguard/principals"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// Option configures the gin handlers in this package.
type Option func(*config)

type config struct {
	log     *slog.Logger
	realm   string
	metrics *guardhttp.Metrics
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(c *config) { c.realm = strings.TrimSpace(realm) }
}

// WithMetrics records outcomes on m.
func WithMetrics(m *guardhttp.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func newConfig(opts []Option) config {
	c := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	c.log = logctx.Wrap(c.log)
	return c
}

// Middleware runs authn once per request and attaches the outcome to
// c.Request's context. Requests without a credential continue as
// unauthenticated; rejected credentials abort with 401.
func Middleware(authn auth.Authenticator, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if logctx.RequestIDFrom(ctx) == "" {
			rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			c.Header(requestIDHeader, rid)
			ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
				RequestID:  rid,
				Method:     c.Request.Method,
				UserAgent:  c.Request.UserAgent(),
				RemoteAddr: c.Request.RemoteAddr,
				Path:       c.Request.URL.Path,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		if auth.FromContext(ctx).State() != auth.StateUnset {
			c.Next()
			return
		}

		ac, err := authn.Authenticate(ctx, c.GetHeader("Authorization"))
		cfg.metrics.ObserveAuthentication(ac, err)
		if err != nil {
			abort(c, cfg, err, map[string]string{"error": "invalid_token"})
			return
		}

		ad := &logctx.AuthData{State: ac.State().String()}
		if p, ok := ac.Principal(); ok {
			ad.PrincipalID = p.ID.String()
		}
		ctx, err = auth.WithAuthContext(logctx.WithAuthData(ctx, ad), ac)
		if err != nil {
			abort(c, cfg, fmt.Errorf("%w: %w", auth.ErrInternal, err), nil)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuthenticated aborts with 401 unless Middleware resolved a
// principal for this request.
func RequireAuthenticated(opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(c *gin.Context) {
		if err := auth.RequireContext(c.Request.Context()); err != nil {
			cfg.metrics.ObserveRejection()
			abort(c, cfg, err, nil)
			return
		}
		c.Next()
	}
}

// ErrorHandler renders the last error attached with c.Error once the
// handler chain has finished, unless a response was already written.
func ErrorHandler(opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		abort(c, cfg, c.Errors.Last().Err, nil)
	}
}

// Abort translates err and aborts the chain with the JSON error response.
func Abort(c *gin.Context, err error, opts ...Option) {
	abort(c, newConfig(opts), err, nil)
}

// PrincipalFrom returns the principal resolved for c, if any.
func PrincipalFrom(c *gin.Context) (principals.Principal, bool) {
	return auth.PrincipalFromContext(c.Request.Context())
}

func abort(c *gin.Context, cfg config, err error, challenge map[string]string) {
	status, body := guardhttp.Translate(err)
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		cfg.log.ErrorContext(ctx, "http.error", slog.Int("status", status), slog.String("err", err.Error()))
	} else {
		cfg.log.InfoContext(ctx, "http.error", slog.Int("status", status), slog.String("err", err.Error()))
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", guardhttp.BearerChallenge(cfg.realm, challenge))
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, body)
}
