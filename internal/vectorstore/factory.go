package vectorstore

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// NewFromEnv constructs a Store from environment variables.
//
// Resolution order:
//
//  1. VECTOR_BACKEND — memory (default) or qdrant
//  2. memory: INDEX_PATH enables snapshot durability (empty disables it)
//  3. qdrant: QDRANT_HOST / QDRANT_PORT / QDRANT_COLLECTION / QDRANT_API_KEY / QDRANT_USE_TLS
//
// dimension is the embedding vector size both backends enforce on writes and
// queries. Call Load on the returned store before serving searches.
func NewFromEnv(dimension int, log *slog.Logger) (Store, error) {
	backend := getEnvOrDefault("VECTOR_BACKEND", "memory")

	switch backend {
	case "memory":
		return NewMemoryStore(&MemoryConfig{
			Dimension: dimension,
			Path:      os.Getenv("INDEX_PATH"),
		}, log)

	case "qdrant":
		port := getEnvInt("QDRANT_PORT", 6334)
		return NewQdrantStore(&QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       port,
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "raggy-chunks"),
			Dimension:  dimension,
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_USE_TLS") == "true",
		}, log)

	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q (valid values: memory, qdrant)", backend)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
