// Package metrics exposes Prometheus collectors for the lockstep server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockstep_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ConnectedClients tracks currently open stream connections per role
	ConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lockstep_connected_clients",
			Help: "Number of currently connected stream clients",
		},
		[]string{"role"},
	)

	// BroadcastsTotal counts broadcast fan-outs per event type
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_broadcasts_total",
			Help: "Total number of broadcast fan-outs",
		},
		[]string{"event_type"},
	)

	// SinkDropsTotal counts clients dropped due to failed sink writes
	SinkDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lockstep_sink_drops_total",
			Help: "Total number of clients removed after a failed sink write",
		},
	)

	// LockOperations counts lock coordinator operations by outcome
	LockOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"op", "outcome"},
	)

	// ActiveLocks tracks the number of active (non-expired) locks
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockstep_active_locks",
			Help: "Number of active locks",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch {
	case path == "/health" || path == "/metrics" || path == "/stream" || path == "/locks" || path == "/broadcast":
		return path
	case strings.HasPrefix(path, "/locks/"):
		return "/locks"
	default:
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordClientConnect increments the connected-clients gauge for a role.
func RecordClientConnect(role string) {
	ConnectedClients.WithLabelValues(role).Inc()
}

// RecordClientDisconnect decrements the connected-clients gauge for a role.
func RecordClientDisconnect(role string) {
	ConnectedClients.WithLabelValues(role).Dec()
}

// RecordBroadcast records one broadcast fan-out.
func RecordBroadcast(eventType string) {
	BroadcastsTotal.WithLabelValues(eventType).Inc()
}

// RecordSinkDrop records a client dropped after a failed sink write.
func RecordSinkDrop() {
	SinkDropsTotal.Inc()
}

// RecordLockOperation records a lock coordinator operation outcome.
func RecordLockOperation(op, outcome string) {
	LockOperations.WithLabelValues(op, outcome).Inc()
}

// SetActiveLocks sets the active lock count.
func SetActiveLocks(count float64) {
	ActiveLocks.Set(count)
}
