package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/logging"
	"github.com/raggy/raggy-go/internal/server"
	"github.com/raggy/raggy-go/internal/tracing"
	"github.com/raggy/raggy-go/internal/vectorstore"
)

// NewServeCmd constructs the `raggy serve` command, which starts the HTTP
// server exposing the document Q&A API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the raggy HTTP server",
		Long: `Start the raggy HTTP server on localhost.

The server exposes a REST API for uploading documents, asking questions,
and managing the index: POST /api/documents, POST /api/ask,
POST /api/rebuild, plus health, readiness, and Prometheus metrics
endpoints.

Examples:
  raggy serve
  raggy serve --port 9090
  MODEL_PROVIDER=azure raggy serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer p.close()

			// Rebuilds re-fetch document sources from DOCUMENT_DIR. Without
			// it the rebuild endpoint is disabled.
			var fetcher blob.Fetcher
			if dir := os.Getenv("DOCUMENT_DIR"); dir != "" {
				fetcher = blob.NewDirFetcher(dir)
				log.Info("rebuild enabled", slog.String("document_dir", dir))
			} else {
				log.Info("rebuild disabled", slog.String("reason", "DOCUMENT_DIR not set"))
			}

			srv, err := server.New(p.sys, fetcher, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(p.store),
				APIKey:    os.Getenv("SERVER_API_KEY"),
				RateLimit: float64(getEnvFloat("SERVER_RATE_LIMIT", 0)),
				RateBurst: getEnvInt("SERVER_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// buildPingers assembles the dependency probes for GET /api/ready based on
// the configured backends.
func buildPingers(store vectorstore.Store) []server.Pinger {
	var pingers []server.Pinger

	backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	if backend == "ollama" {
		pingers = append(pingers, server.NewHTTPPinger(
			getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"), "ollama"))
	}

	if qs, ok := store.(*vectorstore.QdrantStore); ok {
		pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
	}

	return pingers
}
