package embedder

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raggy/raggy-go/internal/rag"
)

// fakeEmbedder returns canned vectors or a canned error.
type fakeEmbedder struct {
	vectors [][]float32
	err     error
	delay   time.Duration
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func Test_Checked_PassesThroughValidVectors(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{vectors: [][]float32{{1, 2}, {3, 4}}}
	c := NewChecked(inner, 2, 0)

	got, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[0][0] != 1 || got[1][1] != 4 {
		t.Errorf("unexpected vectors: %v", got)
	}
}

func Test_Checked_EmptyInput(t *testing.T) {
	t.Parallel()
	c := NewChecked(&fakeEmbedder{}, 2, 0)
	got, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed with no texts: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result for empty input, got %v", got)
	}
}

func Test_Checked_BackendErrorBecomesUnavailable(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{err: errors.New("connection refused")}
	c := NewChecked(inner, 2, 0)

	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("got %v, want ErrEmbeddingUnavailable", err)
	}
}

func Test_Checked_WrongDimension(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{vectors: [][]float32{{1, 2, 3}}}
	c := NewChecked(inner, 2, 0)

	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func Test_Checked_CountMismatch(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{vectors: [][]float32{{1, 2}}}
	c := NewChecked(inner, 2, 0)

	_, err := c.Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("got %v, want ErrEmbeddingUnavailable", err)
	}
}

func Test_Checked_NonFiniteValue(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{vectors: [][]float32{{1, float32(math.NaN())}}}
	c := NewChecked(inner, 2, 0)

	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("got %v, want ErrEmbeddingUnavailable", err)
	}
}

func Test_Checked_Timeout(t *testing.T) {
	t.Parallel()
	inner := &fakeEmbedder{vectors: [][]float32{{1, 2}}, delay: time.Second}
	c := NewChecked(inner, 2, 10*time.Millisecond)

	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, rag.ErrEmbeddingUnavailable) {
		t.Errorf("got %v, want ErrEmbeddingUnavailable", err)
	}
}
