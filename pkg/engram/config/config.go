// Package config defines engram's configuration: the embedded database,
// embedding provider, search weights, file indexing, housekeeping schedules
// and the outward surfaces (HTTP gateway, Discord channel). Config is loaded
// from YAML with environment expansion; see loader.go.
package config

import (
	"fmt"
	"time"

	"github.com/engramd/engram/pkg/engram/memory"
)

// Config is the root configuration.
type Config struct {
	Database     DatabaseConfig         `yaml:"database"`
	Embedding    memory.EmbeddingConfig `yaml:"embedding"`
	Search       SearchConfig           `yaml:"search"`
	Index        IndexConfig            `yaml:"index"`
	Housekeeping HousekeepingConfig     `yaml:"housekeeping"`
	Gateway      GatewayConfig          `yaml:"gateway"`
	Channels     ChannelsConfig         `yaml:"channels"`
	Logging      LoggingConfig          `yaml:"logging"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file. Relative paths resolve against the config
	// file's directory.
	Path string `yaml:"path"`
}

// SearchConfig tunes the hybrid ranker.
type SearchConfig struct {
	// VectorWeight and KeywordWeight are the hybrid fusion weights.
	VectorWeight  float64 `yaml:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight"`

	// DefaultLimit is the result count when a caller does not specify one.
	DefaultLimit int `yaml:"default_limit"`
}

// IndexConfig controls the background file re-indexer.
type IndexConfig struct {
	// Enabled turns the re-indexer on inside `engram serve`.
	Enabled bool `yaml:"enabled"`

	// Paths are glob patterns of files to watch (e.g. "notes/*.md").
	Paths []string `yaml:"paths"`

	// ScanInterval is how often watched paths are polled for changes.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// Debounce is the quiet window before a changed file is re-indexed, so
	// rapid successive writes coalesce into one indexing run.
	Debounce time.Duration `yaml:"debounce"`
}

// HousekeepingConfig schedules background maintenance. Schedules use cron
// syntax.
type HousekeepingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ExpirySweepSchedule removes entries whose expires_at has passed.
	ExpirySweepSchedule string `yaml:"expiry_sweep_schedule"`

	// AccessLogRetentionDays bounds the access-log audit trail.
	AccessLogRetentionDays int    `yaml:"access_log_retention_days"`
	PruneSchedule          string `yaml:"prune_schedule"`

	// ReindexSchedule forces a full file re-index, catching anything the
	// change detector missed.
	ReindexSchedule string `yaml:"reindex_schedule"`
}

// GatewayConfig configures the HTTP API.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// AuthToken enables bearer authentication when non-empty.
	AuthToken string `yaml:"auth_token"`

	// AllowedOrigins is the CORS allowlist. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ChannelsConfig holds transport collaborators.
type ChannelsConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig configures the Discord bot channel.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`

	// CommandPrefix precedes bot commands (default "!").
	CommandPrefix string `yaml:"command_prefix"`

	// AllowedChannels restricts the bot to specific channel IDs. Empty
	// means all channels the bot can see.
	AllowedChannels []string `yaml:"allowed_channels"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the baseline configuration that YAML values overlay.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "engram.db",
		},
		Embedding: memory.DefaultEmbeddingConfig(),
		Search: SearchConfig{
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			DefaultLimit:  10,
		},
		Index: IndexConfig{
			Enabled:      false,
			ScanInterval: 30 * time.Second,
			Debounce:     5 * time.Second,
		},
		Housekeeping: HousekeepingConfig{
			Enabled:                true,
			ExpirySweepSchedule:    "@hourly",
			AccessLogRetentionDays: 90,
			PruneSchedule:          "@daily",
			ReindexSchedule:        "@daily",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8787,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				CommandPrefix: "!",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path must not be empty")
	}
	if c.Search.VectorWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("config: search weights must not be negative")
	}
	if c.Search.VectorWeight == 0 && c.Search.KeywordWeight == 0 {
		return fmt.Errorf("config: at least one search weight must be positive")
	}
	if c.Index.Enabled && len(c.Index.Paths) == 0 {
		return fmt.Errorf("config: index.enabled requires index.paths")
	}
	if c.Index.Debounce < 0 || c.Index.ScanInterval < 0 {
		return fmt.Errorf("config: index intervals must not be negative")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("config: channels.discord.enabled requires a token")
	}
	return nil
}
