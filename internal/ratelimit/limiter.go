package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reposweep.org/internal/audit"
	"reposweep.org/internal/obs"
)

// Limiter gates a route group with a fixed window and limit. Each group
// carries its own name so auth and batch-action routes count independently
// even for the same client.
type Limiter struct {
	store  Store
	name   string
	window time.Duration
	limit  int
}

// New builds a limiter over the given store.
func New(store Store, name string, window time.Duration, limit int) *Limiter {
	return &Limiter{store: store, name: name, window: window, limit: limit}
}

// Wrap applies the gate to a handler. CORS preflight always passes; a store
// failure fails open, since dropping legitimate traffic over a counter
// outage is worse than briefly losing the gate.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := l.name + ":" + ClientKey(r)
		count, err := l.store.Incr(r.Context(), key, l.window)
		if err != nil {
			obs.LogError("rate limit store unavailable", map[string]any{"limiter": l.name, "error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}
		if count > l.limit {
			l.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) reject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)

	payload := map[string]any{"error": "rate limit exceeded"}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// ClientKey derives the client identifier from trusted proxy headers in
// priority order, falling back to the socket address and finally "unknown".
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
