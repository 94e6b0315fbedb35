package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/blob"
	"github.com/raggy/raggy-go/internal/logging"
)

// NewRebuildCmd constructs the `raggy rebuild` command, which re-indexes
// every registered document from its source file.
func NewRebuildCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-index every registered document from source",
		Long: `Re-fetch, re-chunk, re-embed, and re-index every registered document,
then atomically replace the index. The old index stays queryable until
the new one is complete.

Documents whose source file has vanished are marked failed and excluded
from the new index. If the embedding backend is unavailable the rebuild
aborts and the old index is kept.

Examples:
  raggy rebuild --dir ./docs
  DOCUMENT_DIR=./docs raggy rebuild`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if dir == "" {
				dir = getEnvOrDefault("DOCUMENT_DIR", "")
			}
			if dir == "" {
				return fmt.Errorf("rebuild: provide --dir or set DOCUMENT_DIR")
			}

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			defer p.close()

			if err := p.sys.RebuildAll(ctx, blob.NewDirFetcher(dir)); err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			size, err := p.sys.IndexSize(ctx)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			log.Info("rebuild complete", slog.Uint64("index_size", size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory holding the document source files")

	return cmd
}
