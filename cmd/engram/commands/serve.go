package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engramd/engram/pkg/engram/channels/discord"
	"github.com/engramd/engram/pkg/engram/config"
	"github.com/engramd/engram/pkg/engram/gateway"
	"github.com/engramd/engram/pkg/engram/housekeeping"
	"github.com/engramd/engram/pkg/engram/indexer"
	"github.com/engramd/engram/pkg/engram/memory"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `engram serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the memory daemon",
		Long: `Starts engram as a long-running service: the HTTP gateway, the
Discord channel, the file indexer and housekeeping jobs, as enabled in the
configuration.

Examples:
  engram serve
  engram serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(cfg, verbose)

	// Resolve from vault, OS keyring, then environment.
	config.ResolveSecrets(cfg, logger)

	lazy := memory.NewLazyEmbedder(func() (memory.EmbeddingProvider, error) {
		return memory.NewEmbeddingProvider(cfg.Embedding, logger), nil
	})

	store, err := memory.Open(memory.Options{
		Path:          cfg.Database.Path,
		Embedder:      lazy,
		VectorWeight:  cfg.Search.VectorWeight,
		KeywordWeight: cfg.Search.KeywordWeight,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// ── File indexer ──
	var ix *indexer.Indexer
	if cfg.Index.Enabled {
		ix = indexer.New(store, indexer.Options{
			Patterns:     cfg.Index.Paths,
			ScanInterval: cfg.Index.ScanInterval,
			Debounce:     cfg.Index.Debounce,
			Logger:       logger,
		})
		go func() {
			if err := ix.Run(ctx); err != nil {
				logger.Error("indexer stopped", "error", err.Error())
			}
		}()
		logger.Info("file indexer running", "patterns", cfg.Index.Paths)
	}

	// ── Housekeeping ──
	var keeper *housekeeping.Service
	if cfg.Housekeeping.Enabled {
		keeper, err = housekeeping.New(store, ix, housekeeping.Options{
			ExpirySweepSchedule:    cfg.Housekeeping.ExpirySweepSchedule,
			PruneSchedule:          cfg.Housekeeping.PruneSchedule,
			AccessLogRetentionDays: cfg.Housekeeping.AccessLogRetentionDays,
			ReindexSchedule:        cfg.Housekeeping.ReindexSchedule,
			Logger:                 logger,
		})
		if err != nil {
			return err
		}
		keeper.Start()
		defer keeper.Stop()
	}

	// ── HTTP gateway ──
	var gw *gateway.Gateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(store, lazy, cfg.Gateway, logger)
		if err := gw.Start(ctx); err != nil {
			logger.Error("failed to start gateway", "error", err.Error())
		}
	}

	// ── Discord channel ──
	var bot *discord.Discord
	if cfg.Channels.Discord.Enabled {
		bot = discord.New(discord.Config{
			Token:           cfg.Channels.Discord.Token,
			CommandPrefix:   cfg.Channels.Discord.CommandPrefix,
			AllowedChannels: cfg.Channels.Discord.AllowedChannels,
		}, store, logger)
		if err := bot.Connect(ctx); err != nil {
			logger.Error("failed to connect Discord", "error", err.Error())
			bot = nil
		}
	}

	logger.Info("engram running, press Ctrl+C to stop",
		"database", cfg.Database.Path,
		"config", configPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping")
	cancel()

	if bot != nil {
		if err := bot.Disconnect(); err != nil {
			logger.Warn("discord disconnect", "error", err.Error())
		}
	}
	if gw != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", "error", err.Error())
		}
	}
	return nil
}
