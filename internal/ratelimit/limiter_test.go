package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMemoryStoreFixedWindow(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	window := time.Minute
	for i := 1; i <= 5; i++ {
		count, err := store.Incr(context.Background(), "auth:1.2.3.4", window)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	// Window rollover resets the counter to 1.
	now = base.Add(window + time.Second)
	count, err := store.Incr(context.Background(), "auth:1.2.3.4", window)
	if err != nil {
		t.Fatalf("Incr after rollover: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window count 1, got %d", count)
	}
}

func TestMemoryStoreSweepsAtHighWater(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	for i := 0; i <= highWaterMark; i++ {
		key := "k" + strconv.Itoa(i)
		if _, err := store.Incr(context.Background(), key, time.Minute); err != nil {
			t.Fatalf("Incr: %v", err)
		}
	}
	if store.Len() <= highWaterMark {
		t.Fatalf("expected store above high water, got %d", store.Len())
	}

	// All windows expired; the next hit triggers the sweep.
	now = base.Add(2 * time.Minute)
	if _, err := store.Incr(context.Background(), "fresh", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if got := store.Len(); got != 1 {
		t.Fatalf("expected sweep down to 1 entry, got %d", got)
	}
}

func TestLimiterSixthRequestRejected(t *testing.T) {
	limiter := New(NewMemoryStore(), "auth", time.Minute, 5)
	handler := limiter.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 1; i <= 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req.Clone(context.Background()))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(context.Background()))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on sixth request, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["error"] == "" {
		t.Fatal("expected error message in body")
	}
}

func TestLimiterWindowRolloverAdmitsAgain(t *testing.T) {
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	store.now = func() time.Time { return now }

	limiter := New(store, "auth", time.Minute, 5)
	handler := limiter.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 6; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req.Clone(context.Background()))
		if i < 5 && rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if i == 5 && rr.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rr.Code)
		}
	}

	now = base.Add(61 * time.Second)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(context.Background()))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after window rollover, got %d", rr.Code)
	}
}

func TestLimiterBypassesPreflight(t *testing.T) {
	limiter := New(NewMemoryStore(), "actions", time.Minute, 1)
	handler := limiter.Wrap(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/api/delete", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("preflight %d: expected 200, got %d", i, rr.Code)
		}
	}
}

func TestLimiterGroupsCountIndependently(t *testing.T) {
	store := NewMemoryStore()
	authGate := New(store, "auth", time.Minute, 1).Wrap(okHandler())
	actionGate := New(store, "actions", time.Minute, 1).Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr := httptest.NewRecorder()
	authGate.ServeHTTP(rr, req.Clone(context.Background()))
	if rr.Code != http.StatusOK {
		t.Fatalf("auth gate first hit: got %d", rr.Code)
	}

	// Exhausting the auth budget must not consume the action budget.
	rr = httptest.NewRecorder()
	authGate.ServeHTTP(rr, req.Clone(context.Background()))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("auth gate second hit: expected 429, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	actionGate.ServeHTTP(rr, req.Clone(context.Background()))
	if rr.Code != http.StatusOK {
		t.Fatalf("action gate first hit: got %d", rr.Code)
	}
}

func TestClientKeyPriorities(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:4321"

	if got := ClientKey(req); got != "192.0.2.9" {
		t.Fatalf("expected socket host, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientKey(req); got != "198.51.100.7" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.1, 198.51.100.7")
	if got := ClientKey(req); got != "203.0.113.1" {
		t.Fatalf("expected first X-Forwarded-For hop, got %q", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = ""
	if got := ClientKey(bare); got != "unknown" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}
