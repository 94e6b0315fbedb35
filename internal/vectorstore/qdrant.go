package vectorstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/raggy/raggy-go/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant-backed Store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the base collection name. Rebuild generations are
	// materialised as "<Collection>-g<N>" and swapped in-process.
	Collection string

	// Dimension is the embedding vector length stored in the collection.
	Dimension int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance. Rebuild stages a
// fresh generation collection, fills it, then swaps the active collection
// name under the store mutex — queries keep hitting the old generation until
// the swap and never observe a partially filled index.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu guards active and generation.
	mu sync.RWMutex

	// active is the collection name all reads and writes currently target.
	active string

	// generation is the numeric suffix of the active collection.
	generation int

	// log is the structured logger for collection lifecycle events.
	log *slog.Logger
}

// NewQdrantStore creates a QdrantStore and connects to the server. Call Load
// to attach to (or create) the active generation collection before use.
func NewQdrantStore(cfg *QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg == nil || cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be positive")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg, log: log}, nil
}

// Load discovers the latest generation collection for the configured base
// name, creating generation 0 if none exists. Unlike the snapshot-backed
// store there is no corrupt-file case: durability is server-side.
func (s *QdrantStore) Load(ctx context.Context) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}

	prefix := s.cfg.Collection + "-g"
	latest := -1
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if gen, err := strconv.Atoi(name[len(prefix):]); err == nil && gen > latest {
			latest = gen
		}
	}

	if latest < 0 {
		latest = 0
		if err := s.createCollection(ctx, s.collectionName(0)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.generation = latest
	s.active = s.collectionName(latest)
	s.mu.Unlock()

	s.log.Info("qdrant collection attached", slog.String("collection", s.collectionName(latest)))
	return nil
}

// collectionName returns the collection name for a generation.
func (s *QdrantStore) collectionName(gen int) string {
	return fmt.Sprintf("%s-g%d", s.cfg.Collection, gen)
}

// createCollection creates a cosine-distance collection with the configured
// vector size.
func (s *QdrantStore) createCollection(ctx context.Context, name string) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	return nil
}

// activeCollection returns the collection name reads and writes target.
func (s *QdrantStore) activeCollection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Upsert stores or updates entries in the active collection. Point IDs are
// derived from the chunk identity, so re-upserting the same chunk overwrites
// rather than duplicates.
func (s *QdrantStore) Upsert(ctx context.Context, entries []Entry) error {
	return s.upsertInto(ctx, s.activeCollection(), entries)
}

// upsertInto writes entries into the named collection.
func (s *QdrantStore) upsertInto(ctx context.Context, collection string, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != s.cfg.Dimension {
			return fmt.Errorf("qdrant: chunk %s: got %d dimensions, want %d: %w",
				e.Chunk.Key(), len(e.Vector), s.cfg.Dimension, rag.ErrDimensionMismatch)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkPointID(e.Chunk)),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": e.Chunk.DocumentID,
				"seq":         e.Chunk.Seq,
				"text":        e.Chunk.Text,
				"start":       e.Chunk.Start,
				"end":         e.Chunk.End,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search against the active collection.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]rag.ScoredChunk, error) {
	if len(query) != s.cfg.Dimension {
		return nil, fmt.Errorf("qdrant: query has %d dimensions, want %d: %w",
			len(query), s.cfg.Dimension, rag.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.activeCollection(),
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	chunks := make([]rag.ScoredChunk, 0, len(results))
	for _, r := range results {
		sc := rag.ScoredChunk{Score: r.Score}
		if p := r.Payload; p != nil {
			if v, ok := p["document_id"]; ok {
				sc.DocumentID = v.GetStringValue()
			}
			if v, ok := p["seq"]; ok {
				sc.Seq = int(v.GetIntegerValue())
			}
			if v, ok := p["text"]; ok {
				sc.Text = v.GetStringValue()
			}
			if v, ok := p["start"]; ok {
				sc.Start = int(v.GetIntegerValue())
			}
			if v, ok := p["end"]; ok {
				sc.End = int(v.GetIntegerValue())
			}
		}
		chunks = append(chunks, sc)
	}
	return chunks, nil
}

// DeleteDocument removes every point owned by documentID from the active
// collection. Deleting a document with no points is a no-op.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.activeCollection(),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete document %s: %w", documentID, err)
	}
	return nil
}

// Rebuild stages the next generation collection, fills it with entries, then
// swaps the active collection name. The previous generation keeps serving
// queries until the swap and is dropped afterwards (best effort).
func (s *QdrantStore) Rebuild(ctx context.Context, entries []Entry) error {
	s.mu.RLock()
	nextGen := s.generation + 1
	oldName := s.active
	s.mu.RUnlock()

	nextName := s.collectionName(nextGen)
	if err := s.createCollection(ctx, nextName); err != nil {
		return err
	}

	if len(entries) > 0 {
		if err := s.upsertInto(ctx, nextName, entries); err != nil {
			// Leave the old generation active; drop the half-filled staging
			// collection so a retry starts clean.
			_ = s.client.DeleteCollection(ctx, nextName)
			return err
		}
	}

	s.mu.Lock()
	s.generation = nextGen
	s.active = nextName
	s.mu.Unlock()

	if err := s.client.DeleteCollection(ctx, oldName); err != nil {
		s.log.Warn("failed to drop previous generation collection",
			slog.String("collection", oldName), slog.Any("error", err))
	}

	s.log.Info("qdrant index rebuilt",
		slog.String("collection", nextName),
		slog.Int("entries", len(entries)),
	)
	return nil
}

// Count returns the number of points in the active collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.activeCollection(),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return n, nil
}

// Persist is a no-op: Qdrant owns durability server-side.
func (s *QdrantStore) Persist(ctx context.Context) error { return nil }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Client exposes the underlying Qdrant client for health probes.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// chunkPointID derives a deterministic UUID-formatted point ID from the
// chunk identity so the same chunk always maps to the same point.
func chunkPointID(c rag.Chunk) string {
	h := sha256.Sum256([]byte(c.Key()))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
