package processor

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/raggy/raggy-go/internal/rag"
)

// newTestProcessor constructs a Processor with the given chunking policy.
func newTestProcessor(t *testing.T, size, overlap int) *Processor {
	t.Helper()
	return New(&Config{ChunkSize: size, ChunkOverlap: overlap}, slog.Default())
}

func Test_SplitText_OverlapScenario(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 1000, 200)

	// 3500 characters with no natural breaks, so every cut is a hard cut.
	text := strings.Repeat("abcdefghij", 350)

	chunks := p.SplitText("doc-1", text)
	if len(chunks) != 5 {
		t.Fatalf("want 5 chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if c.Seq != i {
			t.Errorf("chunk %d: want seq %d, got %d", i, i, c.Seq)
		}
		if c.DocumentID != "doc-1" {
			t.Errorf("chunk %d: wrong document id %q", i, c.DocumentID)
		}
		if c.Text != text[c.Start:c.End] {
			t.Errorf("chunk %d: text does not match offsets [%d:%d]", i, c.Start, c.End)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		head := c.Text[:200]
		tail := prev.Text[len(prev.Text)-200:]
		if head != tail {
			t.Errorf("chunk %d: first 200 chars do not match prior chunk's trailing 200", i)
		}
	}
}

func Test_SplitText_RoundTripModuloOverlap(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 120, 30)

	// Prose with sentence and paragraph breaks so natural cuts fire.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 12) +
		"\n\n" +
		strings.Repeat("Pack my box with five dozen liquor jugs. ", 10)

	chunks := p.SplitText("doc-rt", text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}

	var b strings.Builder
	b.WriteString(chunks[0].Text)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].End - chunks[i].Start
		if overlap < 0 {
			t.Fatalf("chunk %d: gap between chunks (prev end %d, start %d)", i, chunks[i-1].End, chunks[i].Start)
		}
		b.WriteString(chunks[i].Text[overlap:])
	}
	if b.String() != text {
		t.Error("concatenating chunks minus overlap did not reproduce the input text")
	}
}

func Test_SplitText_PrefersNaturalBreak(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 100, 20)

	// Paragraph break at offset 90, inside the tolerance window of chunk 0.
	text := strings.Repeat("a", 90) + "\n\n" + strings.Repeat("b", 200)

	chunks := p.SplitText("doc-nb", text)
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	if chunks[0].End != 92 {
		t.Errorf("want chunk 0 cut after the paragraph break at 92, got %d", chunks[0].End)
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Error("chunk 0 should end with the paragraph break")
	}
	if chunks[1].Start != chunks[0].End-20 {
		t.Errorf("chunk 1 start %d does not respect the overlap from end %d", chunks[1].Start, chunks[0].End)
	}
}

func Test_SplitText_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 1000, 200)

	chunks := p.SplitText("doc-s", "just a few words")
	if len(chunks) != 1 {
		t.Fatalf("want exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Seq != 0 || chunks[0].Start != 0 || chunks[0].End != len("just a few words") {
		t.Errorf("unexpected chunk bounds: %+v", chunks[0])
	}
}

func Test_SplitText_EmptyTextYieldsNone(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 1000, 200)

	if chunks := p.SplitText("doc-e", ""); chunks != nil {
		t.Errorf("want nil for empty text, got %d chunks", len(chunks))
	}
}

func Test_Process_UnparseableBytes(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(t, 1000, 200)

	_, err := p.Process("doc-bad", []byte("this is not a pdf"))
	if !errors.Is(err, rag.ErrExtraction) {
		t.Fatalf("want rag.ErrExtraction, got %v", err)
	}
}

func Test_New_ClampsOverlap(t *testing.T) {
	t.Parallel()

	p := New(&Config{ChunkSize: 100, ChunkOverlap: 150}, nil)
	if p.cfg.ChunkOverlap >= p.cfg.ChunkSize {
		t.Errorf("overlap %d not clamped below chunk size %d", p.cfg.ChunkOverlap, p.cfg.ChunkSize)
	}
}
