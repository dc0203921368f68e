package commands

import (
	"fmt"

	"github.com/engramd/engram/pkg/engram/housekeeping"
	"github.com/engramd/engram/pkg/engram/indexer"
	"github.com/spf13/cobra"
)

// newHousekeepCmd creates the `engram housekeep` command for one-shot
// maintenance outside the serve daemon.
func newHousekeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "housekeep",
		Short: "Run maintenance tasks once",
		Long: `Runs every maintenance task immediately: sweeps expired entries,
prunes old access-log rows, and re-indexes configured files. The serve daemon
runs the same tasks on their cron schedules.

Examples:
  engram housekeep`,
		Args: cobra.NoArgs,
		RunE: runHousekeep,
	}
}

func runHousekeep(cmd *cobra.Command, _ []string) error {
	store, _, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(cfg, verbose)

	var ix *indexer.Indexer
	if cfg.Index.Enabled {
		ix = indexer.New(store, indexer.Options{
			Patterns: cfg.Index.Paths,
			Logger:   logger,
		})
	}

	svc, err := housekeeping.New(store, ix, housekeeping.Options{
		ExpirySweepSchedule:    cfg.Housekeeping.ExpirySweepSchedule,
		PruneSchedule:          cfg.Housekeeping.PruneSchedule,
		AccessLogRetentionDays: cfg.Housekeeping.AccessLogRetentionDays,
		ReindexSchedule:        cfg.Housekeeping.ReindexSchedule,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}

	svc.RunOnce(cmd.Context())
	fmt.Println("Maintenance complete.")
	return nil
}
