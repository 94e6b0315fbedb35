// Package commands defines all Cobra CLI commands for the raggy binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/raggy/raggy-go/internal/audit"
	"github.com/raggy/raggy-go/internal/config"
	"github.com/raggy/raggy-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raggy",
		Short: "raggy — question answering over your own PDF documents",
		Long: `raggy is a local-first retrieval-augmented question answering service.

It indexes PDF documents into a vector store and answers natural language
questions grounded in their content, with citations back to the source
chunks. When no indexed document is relevant, it says so instead of
inventing an answer.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.raggy/config.yaml).
See 'raggy --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.raggy/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewRebuildCmd(),
		NewDocsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
