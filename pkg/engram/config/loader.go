// Package config – loader.go reads YAML configuration with environment
// variable expansion and .env file support, and writes config back without
// leaking secrets into the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable (no default/error support)
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadFromFile reads and parses a YAML config file. It loads .env files,
// expands environment references, resolves relative paths against the config
// file's directory and validates the result. A ${VAR:?error} reference with
// its variable unset fails the load.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML bytes, overlaying values onto DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mapping config: %w", err)
	}

	// YAML unmarshal zeros bool fields when the key is absent. Merge the
	// defaults-true sections back so a partial config (e.g. only
	// housekeeping.prune_schedule) does not silently disable them.
	mergeDefaultBool(raw, "housekeeping", "enabled", &cfg.Housekeeping.Enabled, true)
	mergeDefaultBool(raw, "gateway", "enabled", &cfg.Gateway.Enabled, true)

	return cfg, nil
}

// mergeDefaultBool restores a boolean default when the key is absent from
// the raw YAML section.
func mergeDefaultBool(raw map[string]any, section, key string, field *bool, def bool) {
	sec, ok := raw[section].(map[string]any)
	if !ok {
		*field = def
		return
	}
	if _, set := sec[key]; !set {
		*field = def
	}
}

// SaveToFile writes the config as YAML with 0600 permissions, backing up any
// existing file first. Secret values that match an environment variable are
// replaced with a ${VAR} reference so real keys never land on disk.
func SaveToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Embedding.APIKey = sanitizeSecret(cfg.Embedding.APIKey, "ENGRAM_EMBEDDING_API_KEY")
	sanitized.Gateway.AuthToken = sanitizeSecret(cfg.Gateway.AuthToken, "ENGRAM_GATEWAY_TOKEN")
	sanitized.Channels.Discord.Token = sanitizeSecret(cfg.Channels.Discord.Token, "DISCORD_BOT_TOKEN")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Round-trip check before touching the file.
	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed (refusing to write corrupt data): %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches standard locations for a config file.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"engram.yaml",
		"engram.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "engram", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files without overwriting existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces env references with their values. An unset variable
// keeps its placeholder unless a :-default or :?error modifier applies; the
// :?error case embeds an ERROR: marker that expandEnvVarsWithValidation
// turns into a load failure.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, modValue, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			msg := modValue
			if msg == "" {
				msg = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + msg
		case "-":
			return modValue
		}
		return match
	})
}

// expandEnvVarsWithValidation fails when a ${VAR:?error} reference is unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}
	rest := result[idx+len("ERROR:"):]
	colonIdx := strings.Index(rest, ":")
	if colonIdx == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	msg := rest[colonIdx+1:]
	if end := strings.IndexByte(msg, '\n'); end != -1 {
		msg = msg[:end]
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colonIdx], msg)
}

// resolveRelativePaths makes file paths absolute relative to the config
// file's directory, so the daemon behaves the same from any working dir.
func resolveRelativePaths(cfg *Config, configPath string) {
	configDir := filepath.Dir(configPath)

	cfg.Database.Path = resolvePathFromConfig(cfg.Database.Path, configDir)
	for i, p := range cfg.Index.Paths {
		cfg.Index.Paths[i] = resolvePathFromConfig(p, configDir)
	}
}

// resolvePathFromConfig expands ~ and resolves relative paths.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret replaces a real secret with an env var reference for safe
// storage in config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference reports whether a string is an env var reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}

// checkFilePermissions warns if the config file is group/world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
