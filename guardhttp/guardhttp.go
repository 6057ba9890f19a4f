// Package guardhttp adapts the authentication pipeline to net/http. The
// middleware runs the pipeline once per request and attaches the outcome to
// the request context; RequireAuthenticated refuses requests that did not
// resolve to a principal; errors are rendered as
//
//	{"status":"error","message":"..."}
//
// with 401 for credential problems and 500 for everything else.
package guardhttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/internal/logctx"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Middleware.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	realm      string
	metadata   string
	metrics    *Metrics
	registerer prometheus.Registerer
	trusted    *TrustedHeaders
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. If
// empty (default) the realm attribute is omitted.
func WithRealm(realm string) Option {
	return func(c *config) { c.realm = strings.TrimSpace(realm) }
}

// WithResourceMetadataURL advertises the RFC 9728 metadata document in
// WWW-Authenticate challenges. See ResourceMetadataHandler.
func WithResourceMetadataURL(url string) Option {
	return func(c *config) { c.metadata = strings.TrimSpace(url) }
}

// WithMetrics records outcomes on an existing collector.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithRegisterer creates a Metrics collector and registers it with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithTrustedHeaders enables proxy-asserted identity from trusted peers.
func WithTrustedHeaders(t *TrustedHeaders) Option {
	return func(c *config) { c.trusted = t }
}

// Middleware runs an auth.Authenticator in front of HTTP handlers.
type Middleware struct {
	authn   auth.Authenticator
	log     *slog.Logger
	realm    string
	metadata string
	metrics  *Metrics
	trusted  *TrustedHeaders
}

// New returns a Middleware using authn. It fails only if metrics
// registration fails.
func New(authn auth.Authenticator, opts ...Option) (*Middleware, error) {
	if authn == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	c := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.registerer != nil {
		if c.metrics == nil {
			c.metrics = NewMetrics()
		}
		if err := c.registerer.Register(c.metrics); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return &Middleware{
		authn:    authn,
		log:      logctx.Wrap(c.logger),
		realm:    c.realm,
		metadata: c.metadata,
		metrics:  c.metrics,
		trusted:  c.trusted,
	}, nil
}

// Wrap runs the authentication pipeline before next. Requests without a
// credential continue as unauthenticated; rejected credentials end with a
// 401 and store failures with a 500. A request whose context already holds
// an authentication outcome is passed through untouched.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = m.withRequestData(w, r)
		ctx := r.Context()

		if auth.FromContext(ctx).State() != auth.StateUnset {
			next.ServeHTTP(w, r)
			return
		}

		ac, err := m.authenticate(r)
		m.metrics.ObserveAuthentication(ac, err)
		if err != nil {
			m.writeError(w, r, err, map[string]string{"error": "invalid_token"})
			return
		}

		ad := &logctx.AuthData{State: ac.State().String()}
		if p, ok := ac.Principal(); ok {
			ad.PrincipalID = p.ID.String()
		}
		ctx = logctx.WithAuthData(ctx, ad)

		ctx, err = auth.WithAuthContext(ctx, ac)
		if err != nil {
			m.writeError(w, r, fmt.Errorf("%w: %w", auth.ErrInternal, err), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticate(r *http.Request) (auth.AuthContext, error) {
	if m.trusted != nil {
		if ac, handled, err := m.trusted.authenticate(r.Context(), r); handled {
			if err == nil {
				m.log.DebugContext(r.Context(), "auth.trusted_headers.ok")
			}
			return ac, err
		}
	}
	return m.authn.Authenticate(r.Context(), r.Header.Get(authorizationHeader))
}

func (m *Middleware) withRequestData(w http.ResponseWriter, r *http.Request) *http.Request {
	if logctx.RequestIDFrom(r.Context()) != "" {
		return r
	}
	rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if rid == "" || len(rid) > 128 {
		rid = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, rid)
	return r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  rid,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	}))
}

// RequireAuthenticated lets the request through only if the context holds
// an authenticated principal. Wrap must run first; without it every request
// is refused.
func (m *Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.RequireContext(r.Context()); err != nil {
			m.metrics.ObserveRejection()
			m.writeError(w, r, err, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc is an http handler that reports failure by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn to http.Handler. Returned errors and panics are rendered
// through WriteError unless fn already started the response.
func (m *Middleware) Handle(fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := fmt.Errorf("panic: %v", v)
				if tw.wrote {
					m.log.ErrorContext(r.Context(), "http.panic", slog.String("err", err.Error()))
					return
				}
				m.WriteError(tw, r, err)
			}
		}()
		if err := fn(tw, r); err != nil {
			if tw.wrote {
				m.log.ErrorContext(r.Context(), "http.error.late", slog.String("err", err.Error()))
				return
			}
			m.WriteError(tw, r, err)
		}
	})
}

// WriteError translates err and writes the JSON error response. 401
// responses carry a Bearer challenge. 5xx causes are logged at error level
// and never reach the client.
func (m *Middleware) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	m.writeError(w, r, err, nil)
}

func (m *Middleware) writeError(w http.ResponseWriter, r *http.Request, err error, challenge map[string]string) {
	status, body := Translate(err)
	ctx := r.Context()
	if status >= 500 {
		m.log.ErrorContext(ctx, "http.error", slog.Int("status", status), slog.String("err", errString(err)))
	} else {
		m.log.InfoContext(ctx, "http.error", slog.Int("status", status), slog.String("err", errString(err)))
	}
	if status == http.StatusUnauthorized {
		params := map[string]string{"resource_metadata": m.metadata}
		for k, v := range challenge {
			params[k] = v
		}
		w.Header().Set(wwwAuthenticateHeader, BearerChallenge(m.realm, params))
	}
	writeJSON(w, status, body)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
