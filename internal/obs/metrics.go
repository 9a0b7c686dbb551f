package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	repoActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_actions_total",
			Help: "Per-item outcomes of batch repository actions.",
		},
		[]string{"action", "outcome"},
	)
)

// Init registers all service metrics with the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, repoActionsTotal)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRepoAction records the outcome of a single batch item.
func ObserveRepoAction(action string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	repoActionsTotal.WithLabelValues(action, outcome).Inc()
}

// knownPaths bounds the cardinality of the path label. Every served route is
// static, so anything else collapses into a single bucket.
var knownPaths = map[string]struct{}{
	"/":              {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
	"/v1/info":       {},
	"/auth/login":    {},
	"/auth/callback": {},
	"/auth/logout":   {},
	"/api/session":   {},
	"/api/repos":     {},
	"/api/delete":    {},
	"/api/archive":   {},
}

// CanonicalPath strips the query string and maps unknown paths to "other"
// so stray crawler traffic cannot inflate the metric label space.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusRecorder captures the response code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
