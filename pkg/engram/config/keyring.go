// Package config – keyring.go stores secrets in the operating system's
// native keyring (Linux: Secret Service, macOS: Keychain, Windows:
// Credential Manager).
//
// Priority for resolving the embedding API key:
//  1. Encrypted vault (.engram.vault — AES-256-GCM + Argon2id, master password)
//  2. OS keyring (encrypted by the OS, requires a user session)
//  3. Environment variable (ENGRAM_EMBEDDING_API_KEY or provider env vars)
//  4. config.yaml value (least secure — plaintext on disk)
package config

import (
	"os"

	"log/slog"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	keyringService = "engram"

	// KeyringEmbeddingKey names the embedding API key in the OS keyring.
	KeyringEmbeddingKey = "embedding_api_key"

	// VaultEmbeddingKey names the embedding API key in the vault. It matches
	// the environment variable so InjectEnv exports a name the provider
	// resolution chain actually consults.
	VaultEmbeddingKey = "ENGRAM_EMBEDDING_API_KEY"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, empty if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks whether the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__engram_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecrets walks the priority chain and fills the config's secret
// fields in place. An existing vault is unlocked via ENGRAM_VAULT_PASSWORD
// or, on a terminal, an interactive prompt; its secrets are injected into
// the environment so ${VAR} references and provider env lookups resolve.
// Returns the unlocked vault (or nil) for reuse by CLI vault commands.
func ResolveSecrets(cfg *Config, logger *slog.Logger) *Vault {
	vault := NewVault(VaultFile)
	if vault.Exists() {
		if !vault.IsUnlocked() {
			if envPass := os.Getenv("ENGRAM_VAULT_PASSWORD"); envPass != "" {
				if err := vault.Unlock(envPass); err != nil {
					logger.Warn("failed to unlock vault with ENGRAM_VAULT_PASSWORD", "error", err)
				}
			}
		}
		if !vault.IsUnlocked() && term.IsTerminal(int(os.Stdin.Fd())) {
			password, err := ReadPassword("Vault password: ")
			if err != nil {
				logger.Warn("failed to read vault password", "error", err)
			} else if err := vault.Unlock(password); err != nil {
				logger.Warn("failed to unlock vault", "error", err)
			}
		}

		if vault.IsUnlocked() {
			if err := vault.InjectEnv(); err != nil {
				logger.Warn("failed to inject vault secrets", "error", err)
			}
			if val, err := vault.Get(VaultEmbeddingKey); err == nil && val != "" {
				cfg.Embedding.APIKey = val
			} else if val, err := vault.Get(KeyringEmbeddingKey); err == nil && val != "" {
				// Older vaults stored the key under its keyring name.
				cfg.Embedding.APIKey = val
			}
			if val, err := vault.Get("ENGRAM_GATEWAY_TOKEN"); err == nil && val != "" {
				cfg.Gateway.AuthToken = val
			}
			if val, err := vault.Get("DISCORD_BOT_TOKEN"); err == nil && val != "" {
				cfg.Channels.Discord.Token = val
			}
			logger.Info("vault secrets loaded", "count", len(vault.List()))
			return vault
		}
		logger.Info("vault exists but is locked, falling back to keyring/env")
	}

	if cfg.Embedding.APIKey == "" || IsEnvReference(cfg.Embedding.APIKey) {
		if val := GetKeyring(KeyringEmbeddingKey); val != "" {
			cfg.Embedding.APIKey = val
			logger.Debug("embedding API key loaded from OS keyring")
			return nil
		}
		if val := os.Getenv("ENGRAM_EMBEDDING_API_KEY"); val != "" {
			cfg.Embedding.APIKey = val
			logger.Debug("embedding API key loaded from environment")
		}
	}
	return nil
}
