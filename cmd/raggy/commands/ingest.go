package commands

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/logging"
)

// NewIngestCmd constructs the `raggy ingest` command, which indexes PDF
// documents into the vector store.
func NewIngestCmd() *cobra.Command {
	var files []string
	var dir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index PDF documents into the vector store",
		Long: `Extract, chunk, embed, and index PDF documents so they can be queried
with 'raggy ask' or the HTTP API.

Re-ingesting an unchanged document is a no-op; re-ingesting a changed
document replaces its old chunks in the index. A document whose text
cannot be extracted is registered as failed and excluded from retrieval.

Relevant environment variables:
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure (default: ollama)
  VECTOR_BACKEND       Vector store: memory (default) or qdrant
  CHUNK_SIZE           Characters per chunk (default: 1000)
  CHUNK_OVERLAP        Characters repeated between chunks (default: 200)

Examples:
  raggy ingest --file handbook.pdf
  raggy ingest --file a.pdf --file b.pdf
  raggy ingest --dir ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(files) == 0 && dir == "" {
				return fmt.Errorf("ingest: provide at least one --file or a --dir")
			}

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer p.close()

			for _, f := range files {
				raw, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("ingest: failed to read %s: %w", f, err)
				}
				doc, err := p.sys.Ingest(ctx, filepath.Base(f), raw)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", f, err)
				}
				log.Info("document indexed",
					slog.String("id", doc.ID),
					slog.String("status", string(doc.Status)),
					slog.Int("chunks", doc.Chunks),
				)
			}

			if dir != "" {
				refs, err := collectPDFs(dir)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if len(refs) == 0 {
					log.Warn("no PDF files found", slog.String("dir", dir))
					return nil
				}
				log.Info("ingesting directory", slog.String("dir", dir), slog.Int("documents", len(refs)))
				if err := p.sys.IngestRefs(ctx, blob.NewDirFetcher(dir), refs); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}

			size, err := p.sys.IndexSize(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			log.Info("ingestion complete", slog.Uint64("index_size", size))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF file to index (repeatable)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to scan recursively for PDF files")

	return cmd
}

// collectPDFs walks dir and returns the relative paths of all PDF files.
func collectPDFs(dir string) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		refs = append(refs, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return refs, nil
}
