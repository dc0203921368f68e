package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/engramd/engram/pkg/engram/config"
	"github.com/engramd/engram/pkg/engram/memory"
	"github.com/spf13/cobra"
)

// resolveConfig loads the config file named by --config, or the first one
// FindConfigFile locates. Without any file the defaults apply.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.DefaultConfig(), "", nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, path, nil
}

// newLogger builds the slog logger from the logging config.
func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	} else if cfg.Logging.Level == "warn" {
		level = slog.LevelWarn
	} else if cfg.Logging.Level == "error" {
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// openStore resolves secrets and opens the memory store. The embedder is
// lazy: no provider is constructed until the first vector operation.
func openStore(cmd *cobra.Command) (*memory.Store, *memory.LazyEmbedder, *config.Config, error) {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(cfg, verbose)

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
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return store, lazy, cfg, nil
}

// printEntry renders one entry for terminal output.
func printEntry(e memory.Entry) {
	fmt.Printf("#%d  [%s]  importance %d  confidence %.2f\n", e.ID, e.EntryType, e.Importance, e.Confidence)
	fmt.Printf("    %s\n", e.Content)
	meta := []string{"source=" + e.Source}
	if e.Context != "" {
		meta = append(meta, "context="+e.Context)
	}
	if len(e.Tags) > 0 {
		meta = append(meta, "tags="+strings.Join(e.Tags, ","))
	}
	meta = append(meta, "created="+e.CreatedAt.Format("2006-01-02 15:04"))
	if e.ExpiresAt != nil {
		meta = append(meta, "expires="+e.ExpiresAt.Format("2006-01-02 15:04"))
	}
	if e.AccessCount > 0 {
		meta = append(meta, fmt.Sprintf("accessed %dx", e.AccessCount))
	}
	fmt.Printf("    %s\n", strings.Join(meta, "  "))
}
