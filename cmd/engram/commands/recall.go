package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/engramd/engram/pkg/engram/memory"
	"github.com/spf13/cobra"
)

// newRecallCmd creates the `engram recall` command.
func newRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search memories",
		Long: `Searches stored memories. The default hybrid mode fuses semantic
vector similarity with full-text keyword ranking; --mode selects vector or
keyword ranking alone. Without a query the most recent entries are listed.

Examples:
  engram recall "staging database"
  engram recall --mode keyword --limit 3 "access code"
  engram recall --type preference --min-importance 7 "editor"
  engram recall`,
		Args: cobra.ArbitraryArgs,
		RunE: runRecall,
	}

	cmd.Flags().StringP("mode", "m", "", "search mode (hybrid, vector, keyword)")
	cmd.Flags().IntP("limit", "n", 0, "maximum number of results")
	cmd.Flags().StringSlice("type", nil, "restrict to entry types")
	cmd.Flags().Int("min-importance", 0, "minimum importance")
	cmd.Flags().Float64("min-confidence", 0, "minimum confidence")
	cmd.Flags().StringSlice("tag", nil, "require at least one of these tags")
	cmd.Flags().Bool("json", false, "emit results as JSON")
	return cmd
}

func runRecall(cmd *cobra.Command, args []string) error {
	store, _, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit := cfg.Search.DefaultLimit
	if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
		limit = n
	}

	// No query lists the most recent entries.
	if len(args) == 0 {
		entries, err := store.ListRecent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Nothing remembered yet.")
			return nil
		}
		for _, e := range entries {
			printEntry(e)
		}
		return nil
	}

	opts := memory.SearchOptions{
		Mode:  memory.SearchMode(mustString(cmd, "mode")),
		Limit: limit,
	}
	for _, t := range mustStringSlice(cmd, "type") {
		opts.EntryTypes = append(opts.EntryTypes, memory.EntryType(t))
	}
	opts.MinImportance, _ = cmd.Flags().GetInt("min-importance")
	opts.MinConfidence, _ = cmd.Flags().GetFloat64("min-confidence")
	opts.Tags = mustStringSlice(cmd, "tag")

	results, err := store.Search(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("Nothing matched.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("#%d  score %.3f  (%s)\n", r.ID, r.Score, strings.Join(matchedByNames(r.MatchedBy), "+"))
		fmt.Printf("    %s\n", r.Content)
	}
	return nil
}

func matchedByNames(matched []memory.MatchedBy) []string {
	names := make([]string, len(matched))
	for i, m := range matched {
		names[i] = string(m)
	}
	return names
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func mustStringSlice(cmd *cobra.Command, name string) []string {
	v, _ := cmd.Flags().GetStringSlice(name)
	return v
}
