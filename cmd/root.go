// Package cmd implements the quarry command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Quarry - retrieval core for document question answering",
	Long: `Quarry indexes pre-chunked documents into a pgvector store and serves
top-k retrieval with citation-tagged context assembly.

Subcommands cover indexing, ad hoc queries, document deletion and the
HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
