// Package commands implements the engram CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "engram",
		Short: "engram - persistent memory with hybrid search",
		Long: `engram is a local-first memory engine. Entries are stored in SQLite
and retrieved by hybrid search: semantic vectors fused with full-text ranking.

Examples:
  engram remember "The staging DB lives on host db-3"
  engram recall "staging database"
  engram serve
  engram repl`,
		Version: version,
	}

	rootCmd.AddCommand(
		newRememberCmd(),
		newRecallCmd(),
		newShowCmd(),
		newForgetCmd(),
		newStatsCmd(),
		newIndexCmd(),
		newHousekeepCmd(),
		newServeCmd(),
		newReplCmd(),
		newSetupCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
