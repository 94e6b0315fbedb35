package rag

import "errors"

// Pipeline error taxonomy. Callers classify failures with errors.Is and wrap
// these sentinels with document ID and stage context; none are swallowed.
var (
	// ErrExtraction indicates the input is not a parseable document or
	// contains no extractable text. The document is marked failed; ingestion
	// of other documents continues.
	ErrExtraction = errors.New("document extraction failed")

	// ErrEmbeddingUnavailable indicates the embedding backend is unreachable,
	// timed out, or returned malformed output.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationUnavailable indicates the generation backend is
	// unreachable, timed out, or errored. Distinct from the no-evidence
	// answer so callers can retry rather than report "nothing matched".
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	// ErrDocumentNotFound indicates a bad reference at the storage boundary.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRebuildInProgress indicates a rebuild was requested while another is
	// running. The second request is rejected, never queued.
	ErrRebuildInProgress = errors.New("rebuild in progress")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// configured embedding dimension. Such vectors are rejected, never
	// truncated or padded.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
