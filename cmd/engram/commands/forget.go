package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newForgetCmd creates the `engram forget` command.
func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory",
		Long: `Deletes a memory entry and everything derived from it: the vector,
the full-text index row and the embedding cache no longer reference it.

Examples:
  engram forget 42`,
		Args: cobra.ExactArgs(1),
		RunE: runForget,
	}
}

func runForget(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid memory id %q", args[0])
	}

	store, _, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	existed, err := store.Delete(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Printf("No memory #%d.\n", id)
		return nil
	}
	fmt.Printf("Forgot memory #%d.\n", id)
	return nil
}
