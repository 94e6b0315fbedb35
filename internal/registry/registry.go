// Package registry provides a SQLite-backed document registry. It records
// every ingested document with its content hash and lifecycle status so
// ingestion is idempotent across restarts and the full corpus can be
// re-indexed from durable state.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/raggy/raggy-go/internal/rag"
)

// Registry persists and retrieves document records. Implementations must be
// safe for concurrent use.
type Registry interface {
	// Upsert inserts the document or updates an existing record with the
	// same ID.
	Upsert(ctx context.Context, doc *rag.Document) error
	// SetStatus updates the lifecycle status of a document. failure carries
	// the error message for StatusFailed and is cleared otherwise. chunks
	// records how many chunks the document produced.
	SetStatus(ctx context.Context, id string, status rag.Status, chunks int, failure string) error
	// Get returns the document with the given ID, or rag.ErrDocumentNotFound.
	Get(ctx context.Context, id string) (*rag.Document, error)
	// GetBySHA256 returns the document with the given content hash, or
	// rag.ErrDocumentNotFound.
	GetBySHA256(ctx context.Context, sum string) (*rag.Document, error)
	// List returns all documents ordered by creation time, oldest first.
	List(ctx context.Context) ([]*rag.Document, error)
	// Delete removes the document record. Deleting an unknown ID returns
	// rag.ErrDocumentNotFound.
	Delete(ctx context.Context, id string) error
	// Close releases any resources held by the registry.
	Close() error
}

// SQLiteRegistry is a Registry backed by a local SQLite database.
type SQLiteRegistry struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the document registry database.
// It resolves to ~/.raggy/registry.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("registry: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".raggy")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("registry: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "registry.db"), nil
}

// Open opens (or creates) a SQLiteRegistry at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteRegistry, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	r := &SQLiteRegistry{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// migrate creates the schema if it does not already exist.
func (r *SQLiteRegistry) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT    PRIMARY KEY,
    name        TEXT    NOT NULL,
    sha256      TEXT    NOT NULL,
    size        INTEGER NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('pending','chunked','indexed','failed')),
    chunks      INTEGER NOT NULL DEFAULT 0,
    error       TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_sha256 ON documents (sha256);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (created_at);
`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	return nil
}

// Upsert inserts the document or updates an existing record with the same ID.
func (r *SQLiteRegistry) Upsert(ctx context.Context, doc *rag.Document) error {
	now := time.Now().Unix()
	created := now
	if !doc.CreatedAt.IsZero() {
		created = doc.CreatedAt.Unix()
	}
	const q = `
INSERT INTO documents (id, name, sha256, size, status, chunks, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name       = excluded.name,
    sha256     = excluded.sha256,
    size       = excluded.size,
    status     = excluded.status,
    chunks     = excluded.chunks,
    error      = excluded.error,
    updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, q,
		doc.ID, doc.Name, doc.SHA256, doc.Size, string(doc.Status), doc.Chunks, doc.Error, created, now)
	if err != nil {
		return fmt.Errorf("registry: upsert %s: %w", doc.ID, err)
	}
	return nil
}

// SetStatus updates the lifecycle status of a document.
func (r *SQLiteRegistry) SetStatus(ctx context.Context, id string, status rag.Status, chunks int, failure string) error {
	const q = `UPDATE documents SET status = ?, chunks = ?, error = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, string(status), chunks, failure, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("registry: set status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: set status %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("registry: document %s: %w", id, rag.ErrDocumentNotFound)
	}
	return nil
}

// Get returns the document with the given ID.
func (r *SQLiteRegistry) Get(ctx context.Context, id string) (*rag.Document, error) {
	const q = `SELECT id, name, sha256, size, status, chunks, error, created_at, updated_at
FROM documents WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id), id)
}

// GetBySHA256 returns the document with the given content hash.
func (r *SQLiteRegistry) GetBySHA256(ctx context.Context, sum string) (*rag.Document, error) {
	const q = `SELECT id, name, sha256, size, status, chunks, error, created_at, updated_at
FROM documents WHERE sha256 = ? ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, sum), sum)
}

// scanOne decodes a single document row, mapping sql.ErrNoRows to the
// domain sentinel.
func (r *SQLiteRegistry) scanOne(row *sql.Row, key string) (*rag.Document, error) {
	var doc rag.Document
	var status string
	var created, updated int64
	err := row.Scan(&doc.ID, &doc.Name, &doc.SHA256, &doc.Size, &status, &doc.Chunks, &doc.Error, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("registry: document %s: %w", key, rag.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", key, err)
	}
	doc.Status = rag.Status(status)
	doc.CreatedAt = time.Unix(created, 0)
	doc.UpdatedAt = time.Unix(updated, 0)
	return &doc, nil
}

// List returns all documents ordered by creation time, oldest first.
func (r *SQLiteRegistry) List(ctx context.Context) ([]*rag.Document, error) {
	const q = `SELECT id, name, sha256, size, status, chunks, error, created_at, updated_at
FROM documents ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var docs []*rag.Document
	for rows.Next() {
		var doc rag.Document
		var status string
		var created, updated int64
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.SHA256, &doc.Size, &status, &doc.Chunks, &doc.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("registry: list scan: %w", err)
		}
		doc.Status = rag.Status(status)
		doc.CreatedAt = time.Unix(created, 0)
		doc.UpdatedAt = time.Unix(updated, 0)
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: list rows: %w", err)
	}
	return docs, nil
}

// Delete removes the document record.
func (r *SQLiteRegistry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("registry: document %s: %w", id, rag.ErrDocumentNotFound)
	}
	return nil
}

// Close releases the database connection pool.
func (r *SQLiteRegistry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("registry: close: %w", err)
	}
	return nil
}
