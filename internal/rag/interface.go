// Package rag defines the core types and capability interfaces of the
// retrieval-augmented generation pipeline: document chunks, retrieval
// results, answers with citations, and the embedding/generation capabilities.
// Concrete implementations (Ollama, OpenAI, Qdrant, etc.) satisfy these
// interfaces so the orchestration layer never depends on a specific backend.
package rag

import (
	"context"
	"fmt"
	"time"
)

// Status is the processing state of an ingested document.
type Status string

const (
	// StatusPending means the document is uploaded but not yet processed.
	StatusPending Status = "pending"
	// StatusChunked means text extraction and splitting succeeded but the
	// chunks are not yet indexed.
	StatusChunked Status = "chunked"
	// StatusIndexed means the document's chunks are embedded and searchable.
	StatusIndexed Status = "indexed"
	// StatusFailed means a pipeline step failed; see the document's Error.
	StatusFailed Status = "failed"
)

// Document is the registry record for one ingested source document.
type Document struct {
	// ID is the stable document identity, derived from the source filename.
	ID string `json:"id"`

	// Name is the original filename or source reference.
	Name string `json:"name"`

	// SHA256 is the hex digest of the raw document bytes.
	SHA256 string `json:"sha256"`

	// Size is the raw byte length of the uploaded document.
	Size int64 `json:"size"`

	// Status is the current processing state.
	Status Status `json:"status"`

	// Chunks is the number of chunks produced for this document.
	// Zero until the document reaches StatusChunked.
	Chunks int `json:"chunks"`

	// Error holds the failure reason when Status is StatusFailed.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the document was first ingested.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the document record last changed.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chunk is a contiguous slice of a document's extracted text — the unit of
// embedding and retrieval. Chunks are immutable once created; identity is
// (DocumentID, Seq).
type Chunk struct {
	// DocumentID is the owning document's ID.
	DocumentID string

	// Seq is the zero-based sequence index defining read order within the
	// document. Sequence indices are contiguous starting at 0.
	Seq int

	// Text is the chunk's text span.
	Text string

	// Start is the byte offset of Text within the extracted document text.
	Start int

	// End is the byte offset one past the last byte of Text.
	End int
}

// Key returns the stable chunk identity string "documentID#seq".
func (c Chunk) Key() string {
	return fmt.Sprintf("%s#%d", c.DocumentID, c.Seq)
}

// ScoredChunk is a retrieved chunk together with its similarity score.
// Score is cosine similarity in [-1, 1]; higher is more relevant.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity between the chunk and the query.
	Score float32
}

// Citation points at a chunk that grounded part of an answer.
type Citation struct {
	// DocumentID is the cited document.
	DocumentID string `json:"documentId"`

	// Seq is the cited chunk's sequence index within the document.
	Seq int `json:"seq"`

	// Score is the retrieval similarity score of the cited chunk.
	Score float32 `json:"score"`
}

// Answer is the result of the retrieval chain: generated text plus the
// sources that were actually in the prompt, deduplicated by document
// (highest-scoring chunk per document kept).
type Answer struct {
	// Text is the generated answer.
	Text string `json:"text"`

	// Citations lists the grounding sources in rank order. Empty when
	// NoEvidence is true.
	Citations []Citation `json:"citations"`

	// NoEvidence is true when no chunk scored above the relevance threshold
	// and the answer states that rather than inventing one.
	NoEvidence bool `json:"noEvidence"`
}

// Embedder is the capability interface for converting text into dense vector
// embeddings. Implementations must be safe to call from multiple goroutines
// and must be deterministic for a fixed model version and input.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator is the capability interface for turning a grounded prompt into
// answer text. Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate produces the answer text for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
