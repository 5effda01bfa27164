package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"uptask/internal/model"
	"uptask/internal/pkg/credential"
	"uptask/internal/store"

	"github.com/gin-gonic/gin"
)

type mapUsers map[string]*model.User

func (m mapUsers) FindUserByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type stubLimiter struct {
	allow bool
	wait  time.Duration
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.wait, l.err
}

func newAuthRouter(issuer *credential.Issuer, users UserFinder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(issuer, users), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+CurrentUser(c).Email)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	issuer := credential.NewIssuer("secret", time.Hour)
	users := mapUsers{"u1": {ID: "u1", Email: "alice@example.com"}}
	r := newAuthRouter(issuer, users)

	valid, err := issuer.Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	unknown, err := issuer.Issue("ghost")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	foreign, err := credential.NewIssuer("other", time.Hour).Issue("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + foreign, http.StatusUnauthorized},
		{"deleted user", "Bearer " + unknown, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"case insensitive scheme", "bearer " + valid, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.want == http.StatusOK && w.Body.String() != "u1|alice@example.com" {
				t.Fatalf("unexpected body %q", w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(l Limiter) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/login", RateLimit(l, "login", nil), func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	denied := &stubLimiter{allow: false, wait: 1500 * time.Millisecond}
	w := run(denied)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if len(denied.keys) != 1 || denied.keys[0] != "login:10.0.0.7" {
		t.Fatalf("unexpected limiter keys %v", denied.keys)
	}

	if w := run(&stubLimiter{allow: true}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when allowed, got %d", w.Code)
	}
	// 限流器故障时放行
	if w := run(&stubLimiter{err: errors.New("redis down")}); w.Code != http.StatusOK {
		t.Fatalf("expected fail-open, got %d", w.Code)
	}
	if w := run(nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 without limiter, got %d", w.Code)
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}
