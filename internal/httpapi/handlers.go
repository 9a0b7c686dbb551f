// Package httpapi is the HTTP layer: routing, middleware, session
// authentication and the JSON handlers over the batch engine and the
// upstream client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"reposweep.org/internal/audit"
	"reposweep.org/internal/auth"
	"reposweep.org/internal/batch"
	"reposweep.org/internal/github"
	"reposweep.org/internal/obs"
	"reposweep.org/internal/ratelimit"
)

// Rate budgets per route group. Tunable, but never inlined at call sites.
const (
	authRateWindow   = time.Minute
	authRateLimit    = 5
	actionRateWindow = time.Minute
	actionRateLimit  = 10
)

const maxBodyBytes = 1 << 20

// Exchanger covers the OAuth flow the callback handler drives.
type Exchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// RepoClient is the upstream surface the API needs per request, built
// around the session's wrapped access token.
type RepoClient interface {
	CurrentUser(ctx context.Context) (string, error)
	ListOwnedRepos(ctx context.Context, owner string) ([]github.Repo, error)
	batch.RepoService
}

// RepoClientFactory builds a RepoClient for one upstream access token.
type RepoClientFactory func(token string) RepoClient

// Pinger is what the readiness probe needs from a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the optional rate-limit backing store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Codec         *auth.Codec
	Flow          Exchanger
	NewRepoClient RepoClientFactory
	RateStore     ratelimit.Store
	ReadyProbe    ReadyProbe

	// Production suppresses upstream error detail and hardens cookies.
	Production bool

	// PublicOrigin overrides the Host-derived origin for the same-origin
	// check. Empty means derive from the request.
	PublicOrigin string

	Version string
}

// API is the HTTP layer.
type API struct {
	mux           *http.ServeMux
	codec         *auth.Codec
	flow          Exchanger
	newRepoClient RepoClientFactory
	readyProbe    ReadyProbe
	production    bool
	publicOrigin  string
	version       string
}

// New assembles the mux. Rate limiting wraps the auth and mutating routes
// individually; everything else in the chain applies in Handler.
func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		codec:         opts.Codec,
		flow:          opts.Flow,
		newRepoClient: opts.NewRepoClient,
		readyProbe:    opts.ReadyProbe,
		production:    opts.Production,
		publicOrigin:  opts.PublicOrigin,
		version:       opts.Version,
	}

	authGate := ratelimit.New(opts.RateStore, "auth", authRateWindow, authRateLimit)
	actionGate := ratelimit.New(opts.RateStore, "actions", actionRateWindow, actionRateLimit)

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/auth/login", authGate.Wrap(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("/auth/callback", authGate.Wrap(http.HandlerFunc(a.handleCallback)))
	a.mux.Handle("/auth/logout", authGate.Wrap(http.HandlerFunc(a.handleLogout)))

	a.mux.Handle("/api/session", a.requireSession(http.HandlerFunc(a.handleSessionCheck)))
	a.mux.Handle("/api/repos", a.requireSession(http.HandlerFunc(a.handleListRepos)))
	a.mux.Handle("/api/delete", actionGate.Wrap(a.requireSession(http.HandlerFunc(a.handleDelete))))
	a.mux.Handle("/api/archive", actionGate.Wrap(a.requireSession(http.HandlerFunc(a.handleArchive))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped server handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, maxBodyBytes)
	h = a.sameOrigin(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- operational handlers ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "reposweep-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "reposweep-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// upstreamError reports a provider-side failure generically. The raw error
// only reaches the response outside production.
func (a *API) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	obs.LogError("upstream request failed", map[string]any{
		"request_id": audit.RequestIDFromContext(r.Context()),
		"error":      err.Error(),
	})
	msg := "upstream request failed"
	if !a.production {
		msg = msg + ": " + err.Error()
	}
	writeError(w, r, http.StatusInternalServerError, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
