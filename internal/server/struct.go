package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the size of an uploaded document (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations. Defaults to
	// prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// orchestrator is the interface handlers call into the document pipeline.
// *system.System satisfies it; tests inject a fake.
type orchestrator interface {
	Ingest(ctx context.Context, name string, raw []byte) (*rag.Document, error)
	RebuildAll(ctx context.Context, fetcher blob.Fetcher) error
	Answer(ctx context.Context, question string) (*rag.Answer, error)
	Documents(ctx context.Context) ([]*rag.Document, error)
	Document(ctx context.Context, id string) (*rag.Document, error)
	Delete(ctx context.Context, id string) error
	IndexSize(ctx context.Context) (uint64, error)
}

// Server is the HTTP server that exposes the document pipeline.
type Server struct {
	// sys is the document pipeline handlers delegate to.
	sys orchestrator
	// fetcher resolves document references during a rebuild.
	fetcher blob.Fetcher
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// uploadResponse is the JSON response for POST /api/documents.
type uploadResponse struct {
	// ID is the registered document ID.
	ID string `json:"id"`
	// Status is the document lifecycle status after ingestion.
	Status string `json:"status"`
	// Chunks is the number of chunks produced.
	Chunks int `json:"chunks"`
}

// documentsResponse is the JSON response for GET /api/documents.
type documentsResponse struct {
	// Documents is the full registry listing.
	Documents []*rag.Document `json:"documents"`
	// IndexSize is the number of chunks currently searchable.
	IndexSize uint64 `json:"indexSize"`
}

// rebuildResponse is the JSON response for POST /api/rebuild.
type rebuildResponse struct {
	// Status is "started" or "already_running".
	Status string `json:"status"`
}

// errorResponse is the JSON body for error status codes.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
