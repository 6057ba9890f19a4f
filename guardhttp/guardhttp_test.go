package guardhttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/auth/authtest"
	"github.com/ggoodman/authguard/principals"
	"github.com/ggoodman/authguard/principals/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGuard(t *testing.T, store principals.Store) *auth.Guard {
	t.Helper()
	g, err := auth.NewGuard(context.Background(), auth.Config{Secret: "s3cret"}, store, auth.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func newMiddleware(t *testing.T, authn auth.Authenticator, opts ...Option) *Middleware {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	m, err := New(authn, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// meHandler echoes the resolved principal name, or "anonymous".
var meHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		_, _ = io.WriteString(w, p.Name)
		return
	}
	_, _ = io.WriteString(w, "anonymous")
})

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("want application/json, got %q", ct)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestProtectedRoute(t *testing.T) {
	store := memory.New(principals.Principal{ID: "42", Name: "Ann"})
	m := newMiddleware(t, newGuard(t, store))
	h := m.Wrap(m.RequireAuthenticated(meHandler))

	good := authtest.MustToken(t, "s3cret", 42, time.Minute)
	foreign := authtest.MustToken(t, "other", 42, time.Minute)
	unknown := authtest.MustToken(t, "s3cret", 7, time.Minute)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: authtest.Header(good), wantStatus: http.StatusOK, wantBody: "Ann"},
		{name: "foreign signature", header: authtest.Header(foreign), wantStatus: http.StatusUnauthorized},
		{name: "unknown principal", header: authtest.Header(unknown), wantStatus: http.StatusUnauthorized},
		{name: "no header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("want status %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if rec.Body.String() != tt.wantBody {
					t.Fatalf("want body %q, got %q", tt.wantBody, rec.Body.String())
				}
				return
			}
			body := decodeBody(t, rec)
			if body.Status != "error" || body.Message != "Unauthorized" {
				t.Fatalf("unexpected body %+v", body)
			}
			if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Fatalf("missing Bearer challenge, got %q", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestPublicRouteAllowsAnonymous(t *testing.T) {
	m := newMiddleware(t, newGuard(t, memory.New()))
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	m.Wrap(meHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("want 200 anonymous, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestPublicRouteRejectsBadCredential(t *testing.T) {
	m := newMiddleware(t, newGuard(t, memory.New()))
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	m.Wrap(meHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); !strings.Contains(got, `error="invalid_token"`) {
		t.Fatalf("want invalid_token challenge, got %q", got)
	}
}

func TestStoreFailureIsInternal(t *testing.T) {
	store := principals.StoreFunc(func(context.Context, principals.ID) (principals.Principal, error) {
		return principals.Principal{}, errors.New("dial tcp: connection refused")
	})
	m := newMiddleware(t, newGuard(t, store))
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", authtest.Header(authtest.MustToken(t, "s3cret", 42, time.Minute)))
	rec := httptest.NewRecorder()
	m.Wrap(m.RequireAuthenticated(meHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body.Message != "Internal Server Error" {
		t.Fatalf("internal detail leaked: %+v", body)
	}
	if rec.Header().Get("WWW-Authenticate") != "" {
		t.Fatalf("500 must not carry a challenge")
	}
}

func TestAuthenticatorRunsOncePerRequest(t *testing.T) {
	calls := 0
	authn := auth.AuthenticatorFunc(func(ctx context.Context, h string) (auth.AuthContext, error) {
		calls++
		return auth.Authenticated(principals.Principal{ID: "1", Name: "Ann"}), nil
	})
	m := newMiddleware(t, authn)
	h := m.Wrap(m.Wrap(m.RequireAuthenticated(meHandler)))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("want 1 authenticator call, got %d", calls)
	}
}

func TestRequireWithoutMiddleware(t *testing.T) {
	m := newMiddleware(t, authtest.NewFixed(principals.Principal{ID: "1"}))
	rec := httptest.NewRecorder()
	m.RequireAuthenticated(meHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	m := newMiddleware(t, authtest.NewFixed(principals.Principal{ID: "1"}))
	h := m.Wrap(meHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("want propagated request id, got %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Request-Id"); len(got) != 36 {
		t.Fatalf("want generated uuid, got %q", got)
	}
}

func TestHandle(t *testing.T) {
	m := newMiddleware(t, authtest.NewFixed(principals.Principal{ID: "1"}))

	tests := []struct {
		name       string
		fn         HandlerFunc
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "client error keeps message",
			fn:         func(http.ResponseWriter, *http.Request) error { return NewError(http.StatusNotFound, "no such widget") },
			wantStatus: http.StatusNotFound,
			wantMsg:    "no such widget",
		},
		{
			name:       "plain error is internal",
			fn:         func(http.ResponseWriter, *http.Request) error { return errors.New("db exploded") },
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal Server Error",
		},
		{
			name:       "unauthorized",
			fn:         func(w http.ResponseWriter, r *http.Request) error { return auth.RequireContext(r.Context()) },
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Unauthorized",
		},
		{
			name:       "panic",
			fn:         func(http.ResponseWriter, *http.Request) error { panic("boom") },
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal Server Error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			m.Handle(tt.fn).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("want %d, got %d", tt.wantStatus, rec.Code)
			}
			if body := decodeBody(t, rec); body.Status != "error" || body.Message != tt.wantMsg {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestHandleLateErrorKeepsResponse(t *testing.T) {
	m := newMiddleware(t, authtest.NewFixed(principals.Principal{ID: "1"}))
	rec := httptest.NewRecorder()
	m.Handle(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("after the fact")
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("want 202, got %d", rec.Code)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"unauthorized", auth.ErrUnauthorized, 401, "Unauthorized"},
		{"joined unauthorized", errors.Join(auth.ErrUnauthorized, errors.New("token expired")), 401, "Unauthorized"},
		{"internal", auth.ErrInternal, 500, "Internal Server Error"},
		{"unknown", errors.New("x"), 500, "Internal Server Error"},
		{"nil", nil, 500, "Internal Server Error"},
		{"client error", NewError(409, "conflict on name"), 409, "conflict on name"},
		{"client error default text", NewError(404, ""), 404, "Not Found"},
		{"server error hides message", NewError(503, "redis down"), 503, "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Translate(tt.err)
			if status != tt.wantStatus || body.Message != tt.wantMsg || body.Status != "error" {
				t.Fatalf("want %d %q, got %d %+v", tt.wantStatus, tt.wantMsg, status, body)
			}
		})
	}
}

func TestBearerChallenge(t *testing.T) {
	tests := []struct {
		realm  string
		params map[string]string
		want   string
	}{
		{"", nil, "Bearer"},
		{"api", nil, `Bearer realm="api"`},
		{"a\"b", map[string]string{"error": "invalid_token"}, `Bearer realm="a\"b", error="invalid_token"`},
		{"", map[string]string{"error_description": "d", "error": "e"}, `Bearer error="e", error_description="d"`},
	}
	for _, tt := range tests {
		if got := BearerChallenge(tt.realm, tt.params); got != tt.want {
			t.Fatalf("want %q, got %q", tt.want, got)
		}
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := memory.New(principals.Principal{ID: "42", Name: "Ann"})
	m := newMiddleware(t, newGuard(t, store), WithRegisterer(reg))
	h := m.Wrap(m.RequireAuthenticated(meHandler))

	send := func(header string) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	send(authtest.Header(authtest.MustToken(t, "s3cret", 42, time.Minute)))
	send("Bearer bad")
	send("")

	for outcome, want := range map[string]float64{
		OutcomeAuthenticated: 1,
		OutcomeRejected:      1,
		OutcomeAnonymous:     1,
		OutcomeError:         0,
	} {
		if got := testutil.ToFloat64(m.metrics.authentications.WithLabelValues(outcome)); got != want {
			t.Fatalf("%s: want %v, got %v", outcome, want, got)
		}
	}
	if got := testutil.ToFloat64(m.metrics.rejections); got != 1 {
		t.Fatalf("want 1 guard rejection, got %v", got)
	}

	if _, err := New(newGuard(t, store), WithRegisterer(reg)); err == nil {
		t.Fatalf("want duplicate registration error")
	}
}
