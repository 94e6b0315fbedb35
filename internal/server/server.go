// Package server implements the HTTP server that exposes the document
// pipeline via a REST API: upload and manage documents, trigger index
// rebuilds, and ask questions against the indexed corpus.
// The server is started by the `raggy serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/logging"
)

// defaultMaxUploadBytes caps uploaded documents at 32 MiB.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the document pipeline and config. fetcher is
// used by POST /api/rebuild to re-fetch document sources; pass nil to disable
// the rebuild endpoint.
func New(sys orchestrator, fetcher blob.Fetcher, cfg *Config) (*Server, error) {
	if sys == nil {
		return nil, fmt.Errorf("server: system must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers the full ask pipeline including generation.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		sys:     sys,
		fetcher: fetcher,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
	registerIndexSize(cfg.MetricsRegistry, sys)

	if cfg.APIKey == "" {
		s.log.Warn("API authentication is disabled — set SERVER_API_KEY to enable")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.protected(rl, http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/documents", s.protected(rl, http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /api/documents", s.protected(nil, http.HandlerFunc(s.handleListDocuments)))
	mux.Handle("GET /api/documents/{id}", s.protected(nil, http.HandlerFunc(s.handleGetDocument)))
	mux.Handle("DELETE /api/documents/{id}", s.protected(nil, http.HandlerFunc(s.handleDeleteDocument)))
	mux.Handle("POST /api/rebuild", s.protected(nil, http.HandlerFunc(s.handleRebuild)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.metrics.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// protected wraps h with Bearer auth and, when rl is non-nil, the per-IP
// rate limit.
func (s *Server) protected(rl *rateLimiter, h http.Handler) http.Handler {
	if rl != nil {
		h = rl.middleware(h)
	}
	return authMiddleware(s.cfg.APIKey, h)
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
