package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/session"
)

type stubResumer map[string]*session.Session

func (s stubResumer) Resume(_ context.Context, token string) (*session.Session, error) {
	if sess, ok := s[token]; ok {
		return sess, nil
	}
	return nil, domain.ErrUnauthenticated
}

func whoami(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(Session(r).UserID()))
}

func TestRequireSession(t *testing.T) {
	resumer := stubResumer{"good": {ID: "s1", User: domain.UserInfo{ID: "host-1", Role: domain.RoleHost}}}
	h := RequireSession(resumer)(http.HandlerFunc(whoami))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "host-1", rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	resumer := stubResumer{
		"admin": {ID: "s1", User: domain.UserInfo{ID: "a", Role: domain.RoleAdmin}},
		"guard": {ID: "s2", User: domain.UserInfo{ID: "g", Role: domain.RoleSecurity}},
	}
	h := RequireSession(resumer)(RequireRole(domain.RoleAdmin)(http.HandlerFunc(whoami)))

	for token, want := range map[string]int{"admin": http.StatusOK, "guard": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, token)
	}
}

type stubAuthorizer struct{}

func (stubAuthorizer) Authorize(token, flowID string) error {
	if token == "tok-"+flowID {
		return nil
	}
	return domain.ErrForbidden
}

func TestRequireKioskFlow(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireKioskFlow(stubAuthorizer{})).Get("/flows/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(path, token string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("/flows/f1", "tok-f1"))
	assert.Equal(t, http.StatusForbidden, call("/flows/f2", "tok-f1"))
	assert.Equal(t, http.StatusUnauthorized, call("/flows/f1", ""))
}

type countingLimiter struct {
	counts map[string]int
	err    error
}

func (c *countingLimiter) CheckRateLimit(_ context.Context, key string, requests int, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.counts[key]++
	return c.counts[key] <= requests, nil
}

func TestRateLimiter(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	rl := NewRateLimiter(limiter, RateLimitConfig{Requests: 2, Window: time.Minute})
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = ip + ":40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("1.1.1.1").Code)
	assert.Equal(t, http.StatusOK, call("1.1.1.1").Code)
	rec := call("1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("2.2.2.2").Code)
	assert.Equal(t, 3, limiter.counts["ip:1.1.1.1"])
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rl := NewRateLimiter(&countingLimiter{err: errors.New("redis down")}, RateLimitConfig{Requests: 1, Window: time.Minute})
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP_IgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:5555"
	req.Header.Set("X-Real-IP", "172.16.0.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.168.1.7", ClientIP(req))
}

func TestClientIP_BehindRealIP(t *testing.T) {
	var got string
	h := chimw.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", got)
}

func TestRateLimiter_SpoofedHeaderSharesBucket(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	rl := NewRateLimiter(limiter, RateLimitConfig{Requests: 1, Window: time.Minute})
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{}
	for _, spoof := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "198.51.100.4:1234"
		req.Header.Set("X-Forwarded-For", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
