// Package cli implements the slitherd command-line client.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root command for the slitherd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "slitherd",
		Short:   "slitherd - analyze smart contracts via the slitherd API",
		Version: version,
	}

	rootCmd.AddCommand(createAnalyzeCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}
