// Package vectorstore provides the persistent vector index that maps
// embeddings to document chunks and serves similarity search. Two backends
// implement the Store interface: an in-process brute-force index with
// snapshot durability, and a Qdrant-backed remote index.
//
// Similarity metric: cosine similarity, scores in [-1, 1], higher is better.
// Ranking ties are broken by insertion order (earlier-indexed chunk first).
package vectorstore

import (
	"context"

	"github.com/raggy/raggy-go/internal/rag"
)

// Entry is one (chunk, embedding vector) pair stored in the index.
type Entry struct {
	// Chunk is the indexed chunk; its (DocumentID, Seq) pair is the entry
	// identity — upserting the same identity overwrites, never duplicates.
	Chunk rag.Chunk

	// Vector is the chunk's embedding. Its length must equal the store's
	// configured dimension or the entry is rejected with
	// rag.ErrDimensionMismatch.
	Vector []float32
}

// Store is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines; Search must
// never block on, or observe a partially applied, Rebuild.
type Store interface {
	// Upsert adds or replaces entries. Replacing an entry with the same
	// chunk identity overwrites its vector and text in place.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to k entries ranked by descending cosine similarity.
	// An empty store yields an empty result, not an error.
	Search(ctx context.Context, query []float32, k int) ([]rag.ScoredChunk, error)

	// DeleteDocument removes every entry owned by documentID. Deleting a
	// document with no entries is a no-op.
	DeleteDocument(ctx context.Context, documentID string) error

	// Rebuild atomically replaces the entire index content with entries.
	// The old index stays fully queryable until the new one is ready; the
	// swap is atomic from the caller's perspective.
	Rebuild(ctx context.Context, entries []Entry) error

	// Count returns the number of entries currently indexed.
	Count(ctx context.Context) (uint64, error)

	// Persist writes the index to durable storage. Backends with server-side
	// durability may make this a no-op.
	Persist(ctx context.Context) error

	// Load restores the index from durable storage. A missing or corrupt
	// store starts empty with a warning rather than failing.
	Load(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
