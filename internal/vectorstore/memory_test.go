package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/raggy/raggy-go/internal/rag"
)

func newTestStore(t *testing.T, dim int, path string) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(&MemoryConfig{Dimension: dim, Path: path}, slog.Default())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	return s
}

func entry(docID string, seq int, vec ...float32) Entry {
	return Entry{
		Chunk:  rag.Chunk{DocumentID: docID, Seq: seq, Text: "chunk " + docID},
		Vector: vec,
	}
}

func Test_MemoryStore_UpsertReplacesByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	if err := s.Upsert(ctx, []Entry{entry("doc-1", 0, 1, 0)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, []Entry{entry("doc-1", 0, 0, 1)}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry after re-upsert, got %d", n)
	}

	got, err := s.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Score < 0.99 {
		t.Errorf("expected replaced vector to score ~1.0, got %+v", got)
	}
}

func Test_MemoryStore_SearchRanksByCosine(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	err := s.Upsert(ctx, []Entry{
		entry("far", 0, 0, 1),
		entry("near", 0, 1, 0.1),
		entry("exact", 0, 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	want := []string{"exact", "near", "far"}
	for i, w := range want {
		if got[i].DocumentID != w {
			t.Errorf("result %d: got %s, want %s", i, got[i].DocumentID, w)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at %d: %f > %f", i, got[i].Score, got[i-1].Score)
		}
	}
}

func Test_MemoryStore_SearchTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	// Same direction, different magnitude: identical cosine scores.
	err := s.Upsert(ctx, []Entry{
		entry("first", 0, 1, 1),
		entry("second", 0, 2, 2),
		entry("third", 0, 3, 3),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Search(ctx, []float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].DocumentID != w {
			t.Errorf("result %d: got %s, want %s", i, got[i].DocumentID, w)
		}
	}
}

func Test_MemoryStore_SearchBounds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	got, err := s.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results from empty store, got %d", len(got))
	}

	if err := s.Upsert(ctx, []Entry{entry("doc-1", 0, 1, 0), entry("doc-2", 0, 0, 1)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err = s.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("k larger than store should return all entries, got %d", len(got))
	}

	got, err = s.Search(ctx, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("Search k=0: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("k=0 should return nothing, got %d", len(got))
	}
}

func Test_MemoryStore_DimensionMismatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 3, "")
	ctx := context.Background()

	err := s.Upsert(ctx, []Entry{entry("doc-1", 0, 1, 0)})
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("Upsert with wrong dims: got %v, want ErrDimensionMismatch", err)
	}

	n, _ := s.Count(ctx)
	if n != 0 {
		t.Errorf("rejected upsert must not modify the store, count=%d", n)
	}

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, rag.ErrDimensionMismatch) {
		t.Errorf("Search with wrong dims: got %v, want ErrDimensionMismatch", err)
	}
}

func Test_MemoryStore_DeleteDocument(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	err := s.Upsert(ctx, []Entry{
		entry("keep", 0, 1, 0),
		entry("drop", 0, 0, 1),
		entry("drop", 1, 1, 1),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.DeleteDocument(ctx, "drop"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 entry after delete, got %d", n)
	}

	// Deleting again, or deleting an unknown document, is a no-op.
	if err := s.DeleteDocument(ctx, "drop"); err != nil {
		t.Errorf("repeat DeleteDocument: %v", err)
	}
	if err := s.DeleteDocument(ctx, "never-existed"); err != nil {
		t.Errorf("DeleteDocument unknown: %v", err)
	}

	got, err := s.Search(ctx, []float32{0, 1}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, sc := range got {
		if sc.DocumentID == "drop" {
			t.Errorf("deleted document still searchable: %+v", sc)
		}
	}
}

func Test_MemoryStore_RebuildSwapsAtomically(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	if err := s.Upsert(ctx, []Entry{entry("old", 0, 1, 0)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			got, err := s.Search(ctx, []float32{1, 0}, 10)
			if err != nil {
				t.Errorf("Search during rebuild: %v", err)
				return
			}
			// Readers see either the old index or the new one, never a mix.
			for _, sc := range got {
				if len(got) > 1 {
					t.Errorf("mixed index visible: %d results", len(got))
					return
				}
				if sc.DocumentID != "old" && sc.DocumentID != "new" {
					t.Errorf("unexpected document %q", sc.DocumentID)
					return
				}
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if err := s.Rebuild(ctx, []Entry{entry("new", i, 1, 0)}); err != nil {
			t.Fatalf("Rebuild: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	got, err := s.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search after rebuild: %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "new" {
		t.Errorf("rebuild did not replace contents: %+v", got)
	}
}

func Test_MemoryStore_PersistAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.gob")
	ctx := context.Background()

	s := newTestStore(t, 2, path)
	err := s.Upsert(ctx, []Entry{entry("doc-1", 0, 1, 0), entry("doc-2", 0, 0, 1)})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded := newTestStore(t, 2, path)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, _ := reloaded.Count(ctx)
	if n != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", n)
	}
	got, err := reloaded.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search after reload: %v", err)
	}
	if got[0].DocumentID != "doc-1" {
		t.Errorf("expected doc-1 as nearest after reload, got %s", got[0].DocumentID)
	}
}

func Test_MemoryStore_LoadMissingSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, filepath.Join(t.TempDir(), "absent.gob"))
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load with no snapshot should start empty, got %v", err)
	}
	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("expected empty store, got %d entries", n)
	}
}

func Test_MemoryStore_LoadCorruptSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.gob")
	if err := os.WriteFile(path, []byte("not a gob stream"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := newTestStore(t, 2, path)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load with corrupt snapshot should start empty, got %v", err)
	}
	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("expected empty store after corrupt snapshot, got %d entries", n)
	}
}

func Test_MemoryStore_ZeroVectorScoresZero(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 2, "")
	ctx := context.Background()

	if err := s.Upsert(ctx, []Entry{entry("zero", 0, 0, 0)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || math.Abs(float64(got[0].Score)) > 1e-6 {
		t.Errorf("zero vector should score 0, got %+v", got)
	}
}
