package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/engramd/engram/pkg/engram/memory"
	"github.com/spf13/cobra"
)

// newRememberCmd creates the `engram remember` command.
func newRememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <text>",
		Short: "Store a memory",
		Long: `Stores a piece of text as a memory entry. Identical content is
deduplicated: re-remembering something returns the existing entry.

Examples:
  engram remember "The staging DB lives on host db-3"
  engram remember --type preference --tags editor "I use spaces, not tabs"
  engram remember --expires-in 48h "Temporary access code is 4512"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRemember,
	}

	cmd.Flags().StringP("type", "t", "", "entry type (fact, preference, event, insight, task, relationship)")
	cmd.Flags().String("source", "", "where this memory came from")
	cmd.Flags().String("context", "", "free-form context note")
	cmd.Flags().Int("importance", 0, "importance 1-10 (default 5)")
	cmd.Flags().Float64("confidence", -1, "confidence 0.0-1.0 (default 1.0)")
	cmd.Flags().StringSlice("tags", nil, "comma-separated tags")
	cmd.Flags().Duration("expires-in", 0, "advisory lifetime, e.g. 48h")
	return cmd
}

func runRemember(cmd *cobra.Command, args []string) error {
	store, _, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := memory.AddOptions{}
	if typ, _ := cmd.Flags().GetString("type"); typ != "" {
		opts.EntryType = memory.EntryType(typ)
	}
	opts.Source, _ = cmd.Flags().GetString("source")
	opts.Context, _ = cmd.Flags().GetString("context")
	if imp, _ := cmd.Flags().GetInt("importance"); imp != 0 {
		opts.Importance = &imp
	}
	if conf, _ := cmd.Flags().GetFloat64("confidence"); conf >= 0 {
		opts.Confidence = &conf
	}
	opts.Tags, _ = cmd.Flags().GetStringSlice("tags")
	if ttl, _ := cmd.Flags().GetDuration("expires-in"); ttl > 0 {
		exp := time.Now().UTC().Add(ttl)
		opts.ExpiresAt = &exp
	}

	res, err := store.Add(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return err
	}
	if res.Duplicate {
		fmt.Printf("Already remembered as #%d.\n", res.ID)
		return nil
	}
	fmt.Printf("Remembered as #%d.\n", res.ID)
	return nil
}
