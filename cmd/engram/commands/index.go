package commands

import (
	"fmt"

	"github.com/engramd/engram/pkg/engram/indexer"
	"github.com/spf13/cobra"
)

// newIndexCmd creates the `engram index` command for a one-shot re-index.
func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [pattern...]",
		Short: "Index files into memory once",
		Long: `Splits the matched files into paragraphs and stores each one as a
memory entry with source "file-index". Unchanged paragraphs are deduplicated;
paragraphs removed from a file are deleted from memory. Without arguments the
configured index.paths patterns are used.

Examples:
  engram index "notes/*.md"
  engram index`,
		RunE: runIndex,
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	store, _, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	patterns := args
	if len(patterns) == 0 {
		patterns = cfg.Index.Paths
	}
	if len(patterns) == 0 {
		return fmt.Errorf("no patterns given and index.paths is empty")
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	ix := indexer.New(store, indexer.Options{
		Patterns: patterns,
		Logger:   newLogger(cfg, verbose),
	})
	if err := ix.ReindexAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Indexed %d entries from %s.\n", store.EntryCount(), joinPatterns(patterns))
	return nil
}

func joinPatterns(patterns []string) string {
	if len(patterns) == 1 {
		return patterns[0]
	}
	return fmt.Sprintf("%d patterns", len(patterns))
}
