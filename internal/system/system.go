// Package system wires the document pipeline together: fetch, chunk, embed,
// index, and answer. It owns the document lifecycle in the registry and is
// the only writer to the vector store, so every mutation of index state goes
// through one place.
package system

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/chain"
	"github.com/raggy/raggy-go/internal/rag"
	"github.com/raggy/raggy-go/internal/registry"
	"github.com/raggy/raggy-go/internal/vectorstore"
)

// Processor turns raw document bytes into ordered chunks.
type Processor interface {
	Process(documentID string, raw []byte) ([]rag.Chunk, error)
}

const (
	// embedBatchSize bounds how many chunk texts go to the embedder per call.
	embedBatchSize = 64

	// DefaultWorkers is the concurrency limit for multi-document operations.
	DefaultWorkers = 4
)

// System orchestrates ingestion, indexing, and question answering.
type System struct {
	processor Processor
	embedder  rag.Embedder
	store     vectorstore.Store
	chain     *chain.Chain
	registry  registry.Registry
	log       *slog.Logger

	// workers limits concurrency in multi-document operations.
	workers int

	// rebuildMu makes rebuilds single-flight. Answering stays lock-free:
	// the store swaps its index atomically.
	rebuildMu sync.Mutex

	// docMu serializes ingestion per document ID.
	docMu   sync.Mutex
	docHeld map[string]*sync.Mutex
}

// New constructs a System. workers <= 0 falls back to DefaultWorkers.
func New(proc Processor, emb rag.Embedder, store vectorstore.Store, ch *chain.Chain, reg registry.Registry, workers int, log *slog.Logger) *System {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &System{
		processor: proc,
		embedder:  emb,
		store:     store,
		chain:     ch,
		registry:  reg,
		log:       log,
		workers:   workers,
		docHeld:   make(map[string]*sync.Mutex),
	}
}

// lockDoc acquires the per-document ingestion lock.
func (s *System) lockDoc(id string) func() {
	s.docMu.Lock()
	mu, ok := s.docHeld[id]
	if !ok {
		mu = &sync.Mutex{}
		s.docHeld[id] = mu
	}
	s.docMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Ingest runs the full pipeline for one document: register, chunk, embed,
// index. Re-ingesting identical content is a no-op that returns the existing
// record; re-ingesting the same ID with changed content replaces the old
// chunks. Extraction failures mark the document failed and return
// rag.ErrExtraction.
func (s *System) Ingest(ctx context.Context, name string, raw []byte) (*rag.Document, error) {
	if name == "" {
		return nil, fmt.Errorf("system: document name is empty")
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	// Identical content already indexed under any name: done.
	if existing, err := s.registry.GetBySHA256(ctx, hash); err == nil && existing.Status == rag.StatusIndexed {
		s.log.Info("document already indexed", slog.String("id", existing.ID), slog.String("sha256", hash[:12]))
		return existing, nil
	}

	unlock := s.lockDoc(name)
	defer unlock()

	doc := &rag.Document{
		ID:     name,
		Name:   name,
		SHA256: hash,
		Size:   int64(len(raw)),
		Status: rag.StatusPending,
	}
	if err := s.registry.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("system: register %s: %w", name, err)
	}

	chunks, err := s.processor.Process(doc.ID, raw)
	if err != nil {
		if serr := s.registry.SetStatus(ctx, doc.ID, rag.StatusFailed, 0, err.Error()); serr != nil {
			s.log.Error("failed to record extraction failure", slog.String("id", doc.ID), slog.Any("error", serr))
		}
		doc.Status = rag.StatusFailed
		doc.Error = err.Error()
		return doc, fmt.Errorf("system: process %s: %w", name, err)
	}
	if err := s.registry.SetStatus(ctx, doc.ID, rag.StatusChunked, len(chunks), ""); err != nil {
		return nil, fmt.Errorf("system: record chunked %s: %w", name, err)
	}

	entries, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("system: embed %s: %w", name, err)
	}

	// Replace any chunks from a previous version of this document before
	// inserting the new ones, so stale tails never linger.
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("system: clear old chunks %s: %w", name, err)
	}
	if err := s.store.Upsert(ctx, entries); err != nil {
		return nil, fmt.Errorf("system: index %s: %w", name, err)
	}
	if err := s.store.Persist(ctx); err != nil {
		s.log.Warn("index persist failed", slog.String("id", doc.ID), slog.Any("error", err))
	}

	if err := s.registry.SetStatus(ctx, doc.ID, rag.StatusIndexed, len(chunks), ""); err != nil {
		return nil, fmt.Errorf("system: record indexed %s: %w", name, err)
	}
	doc.Status = rag.StatusIndexed
	doc.Chunks = len(chunks)

	s.log.Info("document indexed",
		slog.String("id", doc.ID),
		slog.Int("chunks", len(chunks)),
		slog.Int64("bytes", doc.Size),
	)
	return doc, nil
}

// embedChunks converts chunks to store entries in bounded batches.
func (s *System) embedChunks(ctx context.Context, chunks []rag.Chunk) ([]vectorstore.Entry, error) {
	entries := make([]vectorstore.Entry, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := min(i+embedBatchSize, len(chunks))
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for j, c := range batch {
			entries = append(entries, vectorstore.Entry{Chunk: c, Vector: vectors[j]})
		}
	}
	return entries, nil
}

// IngestRefs fetches and ingests every reference concurrently, bounded by the
// worker limit. It keeps going after per-document failures and returns them
// joined, so one broken PDF does not abort a batch.
func (s *System) IngestRefs(ctx context.Context, fetcher blob.Fetcher, refs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var mu sync.Mutex
	var failures []error

	for _, ref := range refs {
		g.Go(func() error {
			raw, err := fetcher.Fetch(ctx, ref)
			if err == nil {
				_, err = s.Ingest(ctx, ref, raw)
			}
			if err != nil {
				s.log.Warn("ingest failed", slog.String("ref", ref), slog.Any("error", err))
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

// RebuildAll re-fetches every registered document and rebuilds the vector
// store from scratch in one atomic swap. Only one rebuild runs at a time;
// a second caller gets rag.ErrRebuildInProgress immediately. Answering stays
// available throughout and sees the old index until the swap.
func (s *System) RebuildAll(ctx context.Context, fetcher blob.Fetcher) error {
	if !s.rebuildMu.TryLock() {
		return rag.ErrRebuildInProgress
	}
	defer s.rebuildMu.Unlock()

	docs, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("system: list documents: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	// rebuilt tracks documents whose chunks made it into the new index.
	// Their statuses flip to indexed only after the store swap succeeds,
	// so a failed swap never reports documents as searchable.
	type rebuilt struct {
		id     string
		chunks int
	}

	var mu sync.Mutex
	var all []vectorstore.Entry
	var done []rebuilt

	for _, doc := range docs {
		g.Go(func() error {
			raw, err := fetcher.Fetch(gctx, doc.Name)
			if err == nil {
				var chunks []rag.Chunk
				chunks, err = s.processor.Process(doc.ID, raw)
				if err == nil {
					var entries []vectorstore.Entry
					entries, err = s.embedChunks(gctx, chunks)
					if err == nil {
						mu.Lock()
						all = append(all, entries...)
						done = append(done, rebuilt{id: doc.ID, chunks: len(chunks)})
						mu.Unlock()
						return nil
					}
				}
			}

			// Embedding outages abort the whole rebuild: losing the provider
			// mid-flight must not produce a half-empty index.
			if errors.Is(err, rag.ErrEmbeddingUnavailable) {
				return err
			}
			s.log.Warn("document excluded from rebuild", slog.String("id", doc.ID), slog.Any("error", err))
			return s.registry.SetStatus(gctx, doc.ID, rag.StatusFailed, 0, err.Error())
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("system: rebuild aborted: %w", err)
	}

	if err := s.store.Rebuild(ctx, all); err != nil {
		return fmt.Errorf("system: rebuild index: %w", err)
	}
	if err := s.store.Persist(ctx); err != nil {
		s.log.Warn("index persist failed after rebuild", slog.Any("error", err))
	}

	for _, r := range done {
		if err := s.registry.SetStatus(ctx, r.id, rag.StatusIndexed, r.chunks, ""); err != nil {
			s.log.Error("failed to record rebuilt document", slog.String("id", r.id), slog.Any("error", err))
		}
	}

	s.log.Info("index rebuilt", slog.Int("documents", len(docs)), slog.Int("chunks", len(all)))
	return nil
}

// Answer delegates to the retrieval chain. It takes no locks, so questions
// keep being answered while a rebuild is running.
func (s *System) Answer(ctx context.Context, question string) (*rag.Answer, error) {
	return s.chain.Answer(ctx, question)
}

// Documents lists every registered document.
func (s *System) Documents(ctx context.Context) ([]*rag.Document, error) {
	return s.registry.List(ctx)
}

// Document returns a single registered document.
func (s *System) Document(ctx context.Context, id string) (*rag.Document, error) {
	return s.registry.Get(ctx, id)
}

// Delete removes a document from both the vector store and the registry.
// The store goes first: if it fails, the registry row survives and a retry
// reaches the store again instead of leaving orphaned chunks searchable.
func (s *System) Delete(ctx context.Context, id string) error {
	unlock := s.lockDoc(id)
	defer unlock()

	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("system: delete chunks %s: %w", id, err)
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Persist(ctx); err != nil {
		s.log.Warn("index persist failed after delete", slog.String("id", id), slog.Any("error", err))
	}
	return nil
}

// IndexSize returns the number of chunks currently searchable.
func (s *System) IndexSize(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}
