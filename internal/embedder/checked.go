package embedder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/raggy/raggy-go/internal/rag"
)

// DefaultTimeout bounds a single embedding call when the wrapped backend is
// slow or unreachable.
const DefaultTimeout = 60 * time.Second

// Checked wraps a rag.Embedder and enforces the contract downstream indexing
// relies on: every returned vector has the expected dimension and contains
// only finite values. Backend failures and timeouts surface as
// rag.ErrEmbeddingUnavailable so callers can distinguish "the provider is
// down" from "the input is bad".
type Checked struct {
	// inner is the wrapped backend embedder.
	inner rag.Embedder
	// dimensions is the vector length every embedding must have.
	dimensions int
	// timeout bounds a single Embed call.
	timeout time.Duration
}

// NewChecked wraps inner with dimension and sanity checks. dimensions must be
// positive. A non-positive timeout falls back to DefaultTimeout.
func NewChecked(inner rag.Embedder, dimensions int, timeout time.Duration) *Checked {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checked{inner: inner, dimensions: dimensions, timeout: timeout}
}

// Dimensions returns the vector length this embedder guarantees.
func (c *Checked) Dimensions() int { return c.dimensions }

// Embed calls the wrapped backend under the configured timeout and validates
// every returned vector. The returned slice is parallel to texts.
func (c *Checked) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vectors, err := c.inner.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			rag.ErrEmbeddingUnavailable, len(texts), len(vectors))
	}

	for i, vec := range vectors {
		if len(vec) != c.dimensions {
			return nil, fmt.Errorf("embedder: embedding %d has %d dimensions, want %d: %w",
				i, len(vec), c.dimensions, rag.ErrDimensionMismatch)
		}
		for _, v := range vec {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("%w: embedding %d contains a non-finite value",
					rag.ErrEmbeddingUnavailable, i)
			}
		}
	}

	return vectors, nil
}
