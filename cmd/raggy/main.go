// Command raggy is the entry point for the raggy document Q&A service.
// It provides a CLI interface (via Cobra) for indexing PDF documents and
// asking questions against them, plus an HTTP server for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/raggy/raggy-go/cmd/raggy/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
