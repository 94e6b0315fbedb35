package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/logging"
)

// NewAskCmd constructs the `raggy ask` command, which answers a single
// natural language question against the indexed documents.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long: `Ask a natural language question and receive an answer grounded in the
indexed documents, with citations back to the source chunks.

If no indexed content is relevant to the question, raggy says so instead
of inventing an answer.

Examples:
  raggy ask "how do I configure the VPN client?"
  raggy ask "what is the expense reporting deadline?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			p, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer p.close()

			question := strings.Join(args, " ")
			ans, err := p.sys.Answer(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)
			if len(ans.Citations) > 0 {
				fmt.Println("\nSources:")
				for _, c := range ans.Citations {
					fmt.Printf("  - %s (chunk %d, score %.3f)\n", c.DocumentID, c.Seq, c.Score)
				}
			}
			return nil
		},
	}

	return cmd
}
