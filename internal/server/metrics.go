package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// runRequestsTotal counts completed /api/run requests, partitioned by
	// outcome: "ok", "bad_request", "timeout", or "error".
	runRequestsTotal *prometheus.CounterVec

	// runActive is 1 while a run holds the run lock, 0 otherwise.
	runActive prometheus.Gauge

	// runWaiting is the number of /api/run requests queued behind the run lock.
	runWaiting prometheus.Gauge

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		runRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "api",
			Name:      "run_requests_total",
			Help:      "Total number of /api/run requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		runActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "conductor",
			Subsystem: "api",
			Name:      "run_active",
			Help:      "Whether an /api/run request is currently executing.",
		}),

		runWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "conductor",
			Subsystem: "api",
			Name:      "run_waiting",
			Help:      "Number of /api/run requests waiting for the active run to finish.",
		}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-caller rate limit.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "conductor",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for next under handler.
// It must run inside requestLogger so the status-capturing writer is reused.
func (m *serverMetrics) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*statusRecorder)
		if !ok {
			rw = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
	})
}
