package guardgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/auth/authtest"
	"github.com/ggoodman/authguard/guardhttp"
	"github.com/ggoodman/authguard/principals"
	"github.com/ggoodman/authguard/principals/memory"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, store principals.Store) *gin.Engine {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := auth.NewGuard(context.Background(), auth.Config{Secret: "s3cret"}, store, auth.WithLogger(log))
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	r := gin.New()
	r.Use(ErrorHandler(WithLogger(log)), Middleware(g, WithLogger(log)))
	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/v1/me", RequireAuthenticated(WithLogger(log)), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	r.GET("/v1/widgets/:id", func(c *gin.Context) {
		_ = c.Error(guardhttp.NewError(http.StatusNotFound, "no such widget"))
	})
	r.GET("/v1/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("db exploded"))
	})
	return r
}

func TestGin(t *testing.T) {
	r := newRouter(t, memory.New(principals.Principal{ID: "42", Name: "Ann"}))
	good := authtest.Header(authtest.MustToken(t, "s3cret", 42, time.Minute))
	bad := authtest.Header(authtest.MustToken(t, "other", 42, time.Minute))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{name: "health anonymous", path: "/v1/health", wantStatus: 200},
		{name: "me authenticated", path: "/v1/me", header: good, wantStatus: 200},
		{name: "me anonymous", path: "/v1/me", wantStatus: 401, wantMsg: "Unauthorized"},
		{name: "me bad signature", path: "/v1/me", header: bad, wantStatus: 401, wantMsg: "Unauthorized"},
		{name: "health bad signature", path: "/v1/health", header: bad, wantStatus: 401, wantMsg: "Unauthorized"},
		{name: "handler client error", path: "/v1/widgets/9", wantStatus: 404, wantMsg: "no such widget"},
		{name: "handler internal error", path: "/v1/broken", wantStatus: 500, wantMsg: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("want %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantMsg == "" {
				return
			}
			var body guardhttp.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "error" || body.Message != tt.wantMsg {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestGinPrincipalBody(t *testing.T) {
	r := newRouter(t, memory.New(principals.Principal{ID: "42", Name: "Ann"}))
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", authtest.Header(authtest.MustToken(t, "s3cret", 42, time.Minute)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var p principals.Principal
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != "42" || p.Name != "Ann" {
		t.Fatalf("unexpected principal %+v", p)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("want request id header")
	}
}
