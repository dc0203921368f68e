package config

import (
	"io"
	"log/slog"
	"os"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Keys stored by the setup wizard must come back out of ResolveSecrets, both
// as the config field and as the exported environment variable the provider
// auto-detection consults.
func TestResolveSecretsReadsVaultKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGRAM_VAULT_PASSWORD", "master-pw")
	t.Setenv("ENGRAM_EMBEDDING_API_KEY", "")

	vault := NewVault(VaultFile)
	if err := vault.Create("master-pw"); err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if err := vault.Set(VaultEmbeddingKey, "sk-from-vault"); err != nil {
		t.Fatalf("set: %v", err)
	}
	vault.Lock()

	cfg := DefaultConfig()
	resolved := ResolveSecrets(cfg, discardLogger())
	if resolved == nil {
		t.Fatal("vault not returned")
	}
	defer resolved.Lock()

	if cfg.Embedding.APIKey != "sk-from-vault" {
		t.Errorf("Embedding.APIKey = %q, want sk-from-vault", cfg.Embedding.APIKey)
	}
	if got := os.Getenv("ENGRAM_EMBEDDING_API_KEY"); got != "sk-from-vault" {
		t.Errorf("env ENGRAM_EMBEDDING_API_KEY = %q, want sk-from-vault", got)
	}
}

// Vaults written before the key name matched the environment variable used
// the keyring name; those must still resolve.
func TestResolveSecretsReadsLegacyVaultKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGRAM_VAULT_PASSWORD", "master-pw")
	t.Setenv("ENGRAM_EMBEDDING_API_KEY", "")

	vault := NewVault(VaultFile)
	if err := vault.Create("master-pw"); err != nil {
		t.Fatalf("create vault: %v", err)
	}
	if err := vault.Set(KeyringEmbeddingKey, "sk-legacy"); err != nil {
		t.Fatalf("set: %v", err)
	}
	vault.Lock()

	cfg := DefaultConfig()
	resolved := ResolveSecrets(cfg, discardLogger())
	if resolved == nil {
		t.Fatal("vault not returned")
	}
	defer resolved.Lock()

	if cfg.Embedding.APIKey != "sk-legacy" {
		t.Errorf("Embedding.APIKey = %q, want sk-legacy", cfg.Embedding.APIKey)
	}
}

// Without a vault, the environment supplies the key.
func TestResolveSecretsFallsBackToEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENGRAM_EMBEDDING_API_KEY", "sk-from-env")

	cfg := DefaultConfig()
	if v := ResolveSecrets(cfg, discardLogger()); v != nil {
		t.Fatalf("unexpected vault: %v", v.Path())
	}
	if cfg.Embedding.APIKey != "sk-from-env" {
		t.Errorf("Embedding.APIKey = %q, want sk-from-env", cfg.Embedding.APIKey)
	}
}
