package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/logging"
)

// NewDocsCmd constructs the `raggy docs` command group for inspecting and
// managing registered documents.
func NewDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List and manage indexed documents",
	}

	cmd.AddCommand(newDocsListCmd(), newDocsDeleteCmd())
	return cmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered documents and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			defer p.close()

			docs, err := p.sys.Documents(ctx)
			if err != nil {
				return fmt.Errorf("docs list: %w", err)
			}
			if len(docs) == 0 {
				fmt.Println("no documents indexed")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCHUNKS\tSIZE\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					d.ID, d.Status, d.Chunks, d.Size, d.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newDocsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Remove a document from the registry and the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			defer p.close()

			if err := p.sys.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
