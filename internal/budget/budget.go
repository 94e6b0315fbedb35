// Package budget provides token budget estimation and context fitting for
// the retrieval pipeline. Because the pipeline supports multiple LLM backends
// with different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/raggy/raggy-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B,
	// GPT-3.5) while leaving room for the output. Override via configuration.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// FitChunks returns the longest prefix of ranked chunks whose combined text,
// together with the fixed prompt scaffolding, fits within maxTokens. Chunks
// arrive ordered best-first, so dropping from the tail discards the weakest
// evidence. The first chunk is always kept even if it alone exceeds the
// budget, so the answer never silently loses all evidence.
func FitChunks(chunks []rag.ScoredChunk, fixedTokens, maxTokens int) []rag.ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}

	total := fixedTokens
	kept := 0
	for _, c := range chunks {
		// Small per-chunk overhead covers the source tag and separators.
		cost := 4 + Estimate(c.Text)
		if kept > 0 && total+cost > maxTokens {
			break
		}
		total += cost
		kept++
	}
	return chunks[:kept]
}
