package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newShowCmd creates the `engram show` command.
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a memory by id",
		Long: `Prints one memory entry in full. Reading an entry counts as an
access and is recorded in the access log; --log prints recent accesses.

Examples:
  engram show 42
  engram show 42 --log`,
		Args: cobra.ExactArgs(1),
		RunE: runShow,
	}

	cmd.Flags().Bool("log", false, "also print recent access-log rows")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid memory id %q", args[0])
	}

	store, _, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	printEntry(entry)

	if withLog, _ := cmd.Flags().GetBool("log"); withLog {
		records, err := store.AccessLog(cmd.Context(), id, 10)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, rec := range records {
			line := fmt.Sprintf("    %s  %s", rec.AccessedAt.Format("2006-01-02 15:04:05"), rec.AccessType)
			if rec.QueryText != "" {
				line += fmt.Sprintf("  query=%q", rec.QueryText)
			}
			fmt.Println(line)
		}
	}
	return nil
}
