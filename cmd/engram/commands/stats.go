package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the `engram stats` command.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	store, _, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Memories:        %d\n", stats.TotalEntries)
	if stats.TotalEntries == 0 {
		return nil
	}
	for typ, n := range stats.ByType {
		fmt.Printf("  %-14s %d\n", typ, n)
	}
	fmt.Printf("Avg importance:  %.1f\n", stats.AvgImportance)
	fmt.Printf("Avg confidence:  %.2f\n", stats.AvgConfidence)
	fmt.Printf("Total accesses:  %d\n", stats.TotalAccesses)
	if stats.OldestEntry != nil {
		fmt.Printf("Oldest entry:    %s\n", stats.OldestEntry.Format("2006-01-02 15:04"))
	}
	if stats.NewestEntry != nil {
		fmt.Printf("Newest entry:    %s\n", stats.NewestEntry.Format("2006-01-02 15:04"))
	}
	return nil
}
