// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"context"
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
	// askRequestsTotal counts completed /api/ask requests, partitioned by
	// outcome: "ok", "no_evidence", or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each /api/ask
	// request through the full retrieve-and-generate pipeline.
	askDurationSeconds *prometheus.HistogramVec

	// ingestTotal counts document ingestions, partitioned by outcome:
	// "ok" or "error".
	ingestTotal *prometheus.CounterVec

	// rebuildTotal counts rebuild requests, partitioned by outcome:
	// "started" or "already_running".
	rebuildTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggy",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggy",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests through the full pipeline.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		ingestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggy",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of document ingestions, partitioned by outcome.",
		}, []string{"outcome"}),

		rebuildTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggy",
			Subsystem: "rebuild",
			Name:      "requests_total",
			Help:      "Total number of rebuild requests, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggy",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// registerIndexSize registers a gauge that reads the number of searchable
// chunks from the pipeline on every scrape.
func registerIndexSize(reg prometheus.Registerer, sys orchestrator) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "raggy",
		Subsystem: "index",
		Name:      "chunks",
		Help:      "Number of chunks currently searchable in the vector index.",
	}, func() float64 {
		n, err := sys.IndexSize(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})
}

// instrument wraps mux so every request is counted and timed against the
// registered route pattern.
func (m *serverMetrics) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		mux.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		// Partition by the matched route pattern, not the raw path, so
		// /api/documents/{id} stays one series regardless of the ID.
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())
	})
}
