package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

type fakeLimiter struct {
	decision domain.RateLimitDecision
	err      error
}

func (f *fakeLimiter) Allow(domain.Context, string, string) (domain.RateLimitDecision, error) {
	return f.decision, f.err
}

func TestRateLimitMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	limiter := &fakeLimiter{decision: domain.RateLimitDecision{Allowed: true, Limit: 10, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
	called := false
	h := RateLimitMiddleware(limiter, "create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/collection-transforms", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected downstream handler to be called")
	}
	if rr.Header().Get("X-RateLimit-Limit") != "10" {
		t.Fatalf("expected limit header, got %q", rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitMiddleware_RejectsWithRetryAfter(t *testing.T) {
	limiter := &fakeLimiter{decision: domain.RateLimitDecision{Allowed: false, Limit: 10, Remaining: 0, ResetAt: time.Now().Add(5 * time.Second)}}
	called := false
	h := RateLimitMiddleware(limiter, "create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/collection-transforms", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if called {
		t.Fatal("did not expect downstream handler to run")
	}
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitMiddleware_FailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errTest}
	called := false
	h := RateLimitMiddleware(limiter, "create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/collection-transforms", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected fail-open to call downstream handler")
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimitMiddleware(nil, "create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("expected passthrough with nil limiter")
	}
}

var errTest = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "limiter down" }
