package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/raggy/raggy-go/internal/rag"
)

// snapshotVersion is the on-disk snapshot format version. Bumped on any
// incompatible change; older or unknown versions load as empty.
const snapshotVersion = 1

// MemoryConfig holds the settings for constructing a MemoryStore.
type MemoryConfig struct {
	// Dimension is the embedding vector length this store accepts.
	Dimension int

	// Path is the snapshot file location. Empty disables durability
	// (Persist and Load become no-ops) — useful in tests.
	Path string
}

// MemoryStore implements Store with a brute-force cosine index held in
// memory. All entries live in a single index value guarded by an RWMutex;
// Rebuild constructs a replacement off-lock and swaps it in one assignment,
// so concurrent searches observe either the old or the new index, never a
// mixture.
type MemoryStore struct {
	// mu guards idx. Writers take the write lock; Search takes the read lock.
	mu sync.RWMutex

	// idx is the current index content.
	idx *memoryIndex

	// dims is the accepted vector dimension.
	dims int

	// path is the snapshot file location; empty disables durability.
	path string

	// log is the structured logger for load/persist events.
	log *slog.Logger
}

// memoryIndex is one generation of index content. Entries keep insertion
// order so ranking ties resolve deterministically.
type memoryIndex struct {
	// entries holds every indexed entry in insertion order.
	entries []indexedEntry

	// byKey maps chunk identity to its position in entries.
	byKey map[string]int

	// byDoc maps document ID to the number of entries it owns, used to make
	// document deletion cheap to check.
	byDoc map[string]int
}

// indexedEntry is an Entry with its precomputed vector norm.
type indexedEntry struct {
	Chunk  rag.Chunk
	Vector []float32
	Norm   float32
}

// newMemoryIndex returns an empty index.
func newMemoryIndex() *memoryIndex {
	return &memoryIndex{
		byKey: make(map[string]int),
		byDoc: make(map[string]int),
	}
}

// NewMemoryStore constructs a MemoryStore for the given configuration.
func NewMemoryStore(cfg *MemoryConfig, log *slog.Logger) (*MemoryStore, error) {
	if cfg == nil || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vectorstore: dimension must be positive")
	}
	if log == nil {
		log = slog.Default()
	}
	return &MemoryStore{
		idx:  newMemoryIndex(),
		dims: cfg.Dimension,
		path: cfg.Path,
		log:  log,
	}, nil
}

// Upsert adds or replaces entries. An entry whose chunk identity already
// exists keeps its original insertion position.
func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dims {
			return fmt.Errorf("vectorstore: chunk %s: got %d dimensions, want %d: %w",
				e.Chunk.Key(), len(e.Vector), s.dims, rag.ErrDimensionMismatch)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.idx.put(e)
	}
	return nil
}

// put inserts or overwrites a single entry in the index.
func (ix *memoryIndex) put(e Entry) {
	ie := indexedEntry{Chunk: e.Chunk, Vector: e.Vector, Norm: norm(e.Vector)}
	key := e.Chunk.Key()
	if pos, ok := ix.byKey[key]; ok {
		ix.entries[pos] = ie
		return
	}
	ix.byKey[key] = len(ix.entries)
	ix.entries = append(ix.entries, ie)
	ix.byDoc[e.Chunk.DocumentID]++
}

// Search computes cosine similarity against every entry and returns the top
// k, ranked by descending score with insertion-order tie-breaking.
func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]rag.ScoredChunk, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("vectorstore: query has %d dimensions, want %d: %w",
			len(query), s.dims, rag.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.idx.entries) == 0 {
		return nil, nil
	}

	qn := norm(query)
	order := make([]int, len(s.idx.entries))
	scores := make([]float32, len(s.idx.entries))
	for i, e := range s.idx.entries {
		order[i] = i
		scores[i] = cosine(query, qn, e.Vector, e.Norm)
	}

	// Stable sort over insertion order: equal scores keep the
	// earlier-indexed chunk first.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]rag.ScoredChunk, 0, k)
	for _, i := range order[:k] {
		results = append(results, rag.ScoredChunk{Chunk: s.idx.entries[i].Chunk, Score: scores[i]})
	}
	return results, nil
}

// DeleteDocument removes every entry owned by documentID. Idempotent.
func (s *MemoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx.byDoc[documentID] == 0 {
		return nil
	}

	kept := make([]indexedEntry, 0, len(s.idx.entries))
	for _, e := range s.idx.entries {
		if e.Chunk.DocumentID != documentID {
			kept = append(kept, e)
		}
	}

	next := newMemoryIndex()
	next.entries = kept
	for i, e := range kept {
		next.byKey[e.Chunk.Key()] = i
		next.byDoc[e.Chunk.DocumentID]++
	}
	s.idx = next
	return nil
}

// Rebuild validates and assembles the replacement index without holding the
// lock, then swaps it in with a single assignment.
func (s *MemoryStore) Rebuild(ctx context.Context, entries []Entry) error {
	next := newMemoryIndex()
	for _, e := range entries {
		if len(e.Vector) != s.dims {
			return fmt.Errorf("vectorstore: rebuild: chunk %s: got %d dimensions, want %d: %w",
				e.Chunk.Key(), len(e.Vector), s.dims, rag.ErrDimensionMismatch)
		}
		next.put(e)
	}

	s.mu.Lock()
	s.idx = next
	s.mu.Unlock()
	return nil
}

// Count returns the number of entries currently indexed.
func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.idx.entries)), nil
}

// snapshot is the gob-encoded on-disk representation. The layout is opaque
// to callers; only Persist and Load touch it.
type snapshot struct {
	Version   int
	Dimension int
	Entries   []snapshotEntry
}

// snapshotEntry is one persisted (chunk, vector) pair.
type snapshotEntry struct {
	Chunk  rag.Chunk
	Vector []float32
}

// Persist writes the current index to the snapshot file. The snapshot is
// written to a temporary file and renamed into place so a crash mid-write
// never corrupts the previous snapshot.
func (s *MemoryStore) Persist(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Dimension: s.dims}
	snap.Entries = make([]snapshotEntry, len(s.idx.entries))
	for i, e := range s.idx.entries {
		snap.Entries[i] = snapshotEntry{Chunk: e.Chunk, Vector: e.Vector}
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("vectorstore: persist: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vectorstore: persist: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("vectorstore: persist encode: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("vectorstore: persist close: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("vectorstore: persist rename: %w", err)
	}

	s.log.Debug("vector snapshot persisted",
		slog.String("path", s.path),
		slog.Int("entries", len(snap.Entries)),
	)
	return nil
}

// Load restores the index from the snapshot file. A missing file starts an
// empty index silently; a corrupt or incompatible snapshot starts empty with
// a warning. Neither case is fatal.
func (s *MemoryStore) Load(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Debug("no vector snapshot found, starting empty", slog.String("path", s.path))
			return nil
		}
		s.log.Warn("vector snapshot unreadable, starting empty",
			slog.String("path", s.path), slog.Any("error", err))
		return nil
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		s.log.Warn("vector snapshot corrupt, starting empty",
			slog.String("path", s.path), slog.Any("error", err))
		return nil
	}
	if snap.Version != snapshotVersion || snap.Dimension != s.dims {
		s.log.Warn("vector snapshot incompatible, starting empty",
			slog.String("path", s.path),
			slog.Int("snapshot_version", snap.Version),
			slog.Int("snapshot_dimension", snap.Dimension),
			slog.Int("configured_dimension", s.dims),
		)
		return nil
	}

	next := newMemoryIndex()
	for _, e := range snap.Entries {
		next.put(Entry{Chunk: e.Chunk, Vector: e.Vector})
	}

	s.mu.Lock()
	s.idx = next
	s.mu.Unlock()

	s.log.Info("vector snapshot loaded",
		slog.String("path", s.path),
		slog.Int("entries", len(snap.Entries)),
	)
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

// norm returns the Euclidean norm of v.
func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// cosine returns the cosine similarity of a and b given their precomputed
// norms. A zero-norm vector scores 0 against everything.
func cosine(a []float32, an float32, b []float32, bn float32) float32 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (float64(an) * float64(bn)))
}
