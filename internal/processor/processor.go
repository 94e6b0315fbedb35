// Package processor implements the document processing stage of the
// ingestion pipeline: it extracts plain text from uploaded PDF bytes and
// splits it into overlapping chunks with source offsets attached.
package processor

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/raggy/raggy-go/internal/rag"
)

// DefaultChunkSize is the target number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the number of characters repeated between
// consecutive chunks so a fact split across a boundary is still retrievable
// from at least one chunk.
const DefaultChunkOverlap = 200

// breakTolerance is the fraction of the chunk size, at the tail of a chunk,
// searched backwards for a natural break (paragraph or sentence) before
// falling back to a hard cut at the target size.
const breakTolerance = 0.15

// Config holds the chunking policy for the processor.
type Config struct {
	// ChunkSize is the target number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters repeated between consecutive
	// chunks. Defaults to 200 if zero; clamped below ChunkSize.
	ChunkOverlap int
}

// Processor extracts text from PDF documents and splits it into chunks.
// It is safe to call from multiple goroutines.
type Processor struct {
	// cfg holds the resolved chunking configuration.
	cfg *Config

	// log is the structured logger for extraction events.
	log *slog.Logger
}

// New constructs a Processor from the given config, applying defaults and
// clamping the overlap below the chunk size.
func New(cfg *Config, log *slog.Logger) *Processor {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{cfg: cfg, log: log}
}

// Process extracts plain text from raw PDF bytes and splits it into chunks
// owned by documentID. The input failing to parse, or yielding no extractable
// text, returns an error wrapping rag.ErrExtraction so the orchestrator can
// mark the document failed.
func (p *Processor) Process(documentID string, raw []byte) ([]rag.Chunk, error) {
	text, err := p.extractText(raw)
	if err != nil {
		return nil, fmt.Errorf("processor: %s: %w", documentID, err)
	}

	chunks := p.SplitText(documentID, text)
	p.log.Debug("document processed",
		slog.String("document_id", documentID),
		slog.Int("text_length", len(text)),
		slog.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// extractText reads every page of the PDF and concatenates the plain text.
func (p *Processor) extractText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrExtraction, err)
	}

	totalPages := reader.NumPage()
	var b strings.Builder
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			p.log.Warn("null page encountered", slog.Int("page", pageIndex))
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", rag.ErrExtraction, pageIndex, err)
		}
		b.WriteString(text)
	}

	extracted := strings.TrimSpace(b.String())
	if extracted == "" {
		return "", fmt.Errorf("%w: no text content extracted", rag.ErrExtraction)
	}
	return extracted, nil
}

// SplitText splits extracted text into overlapping chunks for documentID.
// Chunk boundaries prefer a paragraph or sentence break within the tolerance
// window at the chunk tail; otherwise the chunk is hard-cut at the target
// size. Sequence indices are contiguous starting at 0, and each chunk after
// the first begins with the previous chunk's trailing overlap so that
// concatenating chunks minus the overlap reproduces the input text.
// Text shorter than one chunk yields exactly one chunk; empty text yields nil.
func (p *Processor) SplitText(documentID, text string) []rag.Chunk {
	if len(text) == 0 {
		return nil
	}

	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap
	window := int(float64(size) * breakTolerance)

	var chunks []rag.Chunk
	start := 0
	for {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, rag.Chunk{
				DocumentID: documentID,
				Seq:        len(chunks),
				Text:       text[start:],
				Start:      start,
				End:        len(text),
			})
			return chunks
		}

		// A natural break may shorten the chunk, but never into the overlap
		// region: the next chunk must still start after this one.
		lo := end - window
		if min := start + overlap + 1; lo < min {
			lo = min
		}
		if cut := lastBreak(text[lo:end]); cut >= 0 {
			end = lo + cut
		}

		chunks = append(chunks, rag.Chunk{
			DocumentID: documentID,
			Seq:        len(chunks),
			Text:       text[start:end],
			Start:      start,
			End:        end,
		})
		start = end - overlap
	}
}

// sentenceBreaks are the separators treated as sentence boundaries, in
// addition to the paragraph break "\n\n" which always wins.
var sentenceBreaks = []string{". ", "! ", "? ", ".\n", "\n"}

// lastBreak returns the offset just past the last natural break in seg,
// or -1 when seg contains none. Paragraph breaks take precedence over
// sentence breaks.
func lastBreak(seg string) int {
	if i := strings.LastIndex(seg, "\n\n"); i >= 0 {
		return i + 2
	}
	best := -1
	for _, sep := range sentenceBreaks {
		if i := strings.LastIndex(seg, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}
