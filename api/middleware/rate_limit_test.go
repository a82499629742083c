package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/auth"
	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(scope string) string { return "rl:" + scope }

func limitedRequest(userID uuid.UUID, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/confirm", nil)
	req.RemoteAddr = ip + ":5555"
	return req.WithContext(WithActor(req.Context(), auth.Actor{UserID: userID, Role: enums.RoleUser}))
}

func TestRateLimitBlocksPerUser(t *testing.T) {
	store := &counterStore{}
	policy := NewRateLimitPolicy("payments", time.Minute, 2, 0)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	user := uuid.New()
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(user, "10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(user, "10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, limitedRequest(uuid.New(), "10.0.0.1"))
	if other.Code != http.StatusOK {
		t.Fatalf("another user should not share the bucket, got %d", other.Code)
	}
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("payments", time.Minute, 0, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, limitedRequest(uuid.New(), "10.0.0.9"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, limitedRequest(uuid.New(), "10.0.0.9"))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d, %d", first.Code, second.Code)
	}
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := &counterStore{err: errors.New("redis down")}
	handler := RateLimit(NewRateLimitPolicy("payments", time.Minute, 1, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(uuid.New(), "10.0.0.2"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	called := false
	handler := RateLimit(NewRateLimitPolicy("", 0, 1, 1), &counterStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest(uuid.New(), "10.0.0.3"))
	if !called {
		t.Fatalf("disabled policy should pass through")
	}
}
