package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/raggy/raggy-go/internal/chain"
	"github.com/raggy/raggy-go/internal/embedder"
	"github.com/raggy/raggy-go/internal/processor"
	"github.com/raggy/raggy-go/internal/provider"
	"github.com/raggy/raggy-go/internal/registry"
	"github.com/raggy/raggy-go/internal/system"
	"github.com/raggy/raggy-go/internal/vectorstore"
)

// pipeline bundles the wired document pipeline and the resources it owns.
type pipeline struct {
	// sys is the fully wired orchestrator.
	sys *system.System
	// store is the vector index backing sys, exposed for health probes.
	store vectorstore.Store
	// reg is the document registry backing sys.
	reg registry.Registry
}

// close releases the pipeline's resources in reverse construction order.
func (p *pipeline) close() {
	if p.reg != nil {
		_ = p.reg.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

// buildPipeline wires the full document pipeline from environment
// configuration: embedder, vector store, generation model, retrieval chain,
// document registry, and orchestrator.
func buildPipeline(ctx context.Context, log *slog.Logger) (*pipeline, error) {
	if err := embedder.ValidateConfig(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	dims := embedder.DefaultDimensions(backend)
	checked := embedder.NewChecked(emb, dims, 0)
	log.Info("embedder initialised", slog.String("provider", backend), slog.Int("dimensions", dims))

	store, err := vectorstore.NewFromEnv(dims, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise vector store: %w", err)
	}
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	gen := provider.NewGenerator(chatModel, 0)

	ch := chain.New(checked, store, gen, chain.Config{
		TopK:             getEnvInt("TOP_K", 0),
		ScoreThreshold:   getEnvFloat("SCORE_THRESHOLD", 0),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
	}, log)

	dbPath := os.Getenv("RAGGY_REGISTRY_DB")
	if dbPath == "" {
		dbPath, err = registry.DefaultDBPath()
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to resolve registry path: %w", err)
		}
	}
	reg, err := registry.Open(dbPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open document registry: %w", err)
	}
	log.Info("registry opened", slog.String("path", dbPath))

	proc := processor.New(&processor.Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", 0),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 0),
	}, log)

	sys := system.New(proc, checked, store, ch, reg, getEnvInt("INGEST_WORKERS", 0), log)

	return &pipeline{sys: sys, store: store, reg: reg}, nil
}

// getEnvOrDefault returns the env var value, or def if unset or empty.
func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the env var parsed as an int, or def if unset or invalid.
func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getEnvFloat returns the env var parsed as a float32, or def if unset or
// invalid.
func getEnvFloat(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}
