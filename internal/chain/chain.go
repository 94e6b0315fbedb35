// Package chain implements the retrieval-augmented answer pipeline: embed the
// question, retrieve the nearest chunks, assemble a grounded prompt, and call
// the generation model. Answers carry citations back to the chunks that
// supported them; questions the corpus cannot support return an explicit
// no-evidence answer instead of a hallucinated one.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raggy/raggy-go/internal/budget"
	"github.com/raggy/raggy-go/internal/rag"
	"github.com/raggy/raggy-go/internal/vectorstore"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 3

	// DefaultScoreThreshold is the minimum cosine similarity a chunk must
	// reach to count as evidence. Zero still drops chunks with negative
	// similarity, which point away from the question.
	DefaultScoreThreshold = 0.0

	// noEvidenceText is returned when retrieval finds nothing above the
	// threshold. The model is never called in that case.
	noEvidenceText = "I could not find relevant information in the indexed documents to answer this question."
)

// promptTemplate is the grounded prompt sent to the generation model. Each
// context block is prefixed with its source tag so the model can ground its
// statements in specific chunks.
const promptTemplate = `You are a helpful assistant. Answer the question using only the context below.
If the context does not contain sufficient information to answer the question, say so clearly.

Context:
%s

Question: %s

Answer:`

// Config tunes the retrieval pipeline.
type Config struct {
	// TopK is the number of chunks retrieved per question.
	TopK int
	// ScoreThreshold is the minimum similarity for a chunk to count as
	// evidence.
	ScoreThreshold float32
	// MaxContextTokens bounds the assembled prompt size.
	MaxContextTokens int
}

// Chain answers questions against an indexed corpus.
type Chain struct {
	embedder rag.Embedder
	store    vectorstore.Store
	gen      rag.Generator
	cfg      Config
	log      *slog.Logger
}

// New constructs a Chain. Zero-valued config fields fall back to defaults.
func New(embedder rag.Embedder, store vectorstore.Store, gen rag.Generator, cfg Config, log *slog.Logger) *Chain {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chain{embedder: embedder, store: store, gen: gen, cfg: cfg, log: log}
}

// Answer runs the full pipeline for one question. Embedding and generation
// failures surface as rag.ErrEmbeddingUnavailable and
// rag.ErrGenerationUnavailable respectively.
func (c *Chain) Answer(ctx context.Context, question string) (*rag.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("chain: question is empty")
	}

	vectors, err := c.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("chain: embed question: %w", err)
	}

	results, err := c.store.Search(ctx, vectors[0], c.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("chain: search: %w", err)
	}

	evidence := results[:0:0]
	for _, r := range results {
		if r.Score >= c.cfg.ScoreThreshold {
			evidence = append(evidence, r)
		}
	}

	if len(evidence) == 0 {
		c.log.Info("no evidence above threshold",
			slog.String("question", question),
			slog.Int("retrieved", len(results)),
		)
		return &rag.Answer{Text: noEvidenceText, NoEvidence: true}, nil
	}

	fixed := budget.Estimate(fmt.Sprintf(promptTemplate, "", question))
	evidence = budget.FitChunks(evidence, fixed, c.cfg.MaxContextTokens)

	prompt := fmt.Sprintf(promptTemplate, contextBlock(evidence), question)
	text, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("chain: generate: %w", err)
	}

	return &rag.Answer{
		Text:      strings.TrimSpace(text),
		Citations: citations(evidence),
	}, nil
}

// contextBlock renders the evidence chunks with their source tags.
func contextBlock(evidence []rag.ScoredChunk) string {
	var b strings.Builder
	for i, e := range evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[source: %s]\n%s", e.Key(), e.Text)
	}
	return b.String()
}

// citations maps evidence chunks to citations, keeping one per document with
// its highest-scoring chunk. Evidence arrives best-first, so the first chunk
// seen for a document wins.
func citations(evidence []rag.ScoredChunk) []rag.Citation {
	seen := make(map[string]bool, len(evidence))
	out := make([]rag.Citation, 0, len(evidence))
	for _, e := range evidence {
		if seen[e.DocumentID] {
			continue
		}
		seen[e.DocumentID] = true
		out = append(out, rag.Citation{
			DocumentID: e.DocumentID,
			Seq:        e.Seq,
			Score:      e.Score,
		})
	}
	return out
}
