package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/engramd/engram/pkg/engram/config"
	"github.com/spf13/cobra"
)

// newSetupCmd creates the `engram setup` interactive wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Walks through creating an initial config.yaml. The embedding API
key can be stored in an encrypted vault (AES-256-GCM), the OS keyring, or
left to the environment; it is never written to the config file in plaintext.

Examples:
  engram setup`,
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()

	var (
		dbPath      = cfg.Database.Path
		provider    = cfg.Embedding.Provider
		apiKey      string
		keyStorage  = "env"
		gatewayOn   = cfg.Gateway.Enabled
		gatewayPort = strconv.Itoa(cfg.Gateway.Port)
		discordOn   bool
		discordTok  string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Database path").
				Description("SQLite file holding all memories.").
				Value(&dbPath),
			huh.NewSelect[string]().
				Title("Embedding provider").
				Description("auto picks one from available API keys; none disables vector search.").
				Options(huh.NewOptions("auto", "openai", "gemini", "voyage", "mistral", "none")...).
				Value(&provider),
			huh.NewInput().
				Title("Embedding API key").
				Description("Leave blank to rely on environment variables.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Store the API key in").
				Options(
					huh.NewOption("Encrypted vault (password protected)", "vault"),
					huh.NewOption("OS keyring", "keyring"),
					huh.NewOption("Environment only (don't store)", "env"),
				).
				Value(&keyStorage),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Value(&gatewayOn),
			huh.NewInput().
				Title("Gateway port").
				Value(&gatewayPort),
			huh.NewConfirm().
				Title("Enable the Discord bot?").
				Value(&discordOn),
			huh.NewInput().
				Title("Discord bot token").
				Description("Only needed when the bot is enabled.").
				EchoMode(huh.EchoModePassword).
				Value(&discordTok),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Database.Path = dbPath
	cfg.Embedding.Provider = provider
	cfg.Gateway.Enabled = gatewayOn
	if port, err := strconv.Atoi(gatewayPort); err == nil && port > 0 {
		cfg.Gateway.Port = port
	}
	cfg.Channels.Discord.Enabled = discordOn
	cfg.Channels.Discord.Token = discordTok

	if apiKey != "" {
		switch keyStorage {
		case "vault":
			if err := storeKeyInVault(apiKey); err != nil {
				return err
			}
			fmt.Println("API key stored in", config.VaultFile)
		case "keyring":
			if err := config.StoreKeyring(config.KeyringEmbeddingKey, apiKey); err != nil {
				return fmt.Errorf("storing in keyring: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
		default:
			fmt.Println("API key not stored. Export ENGRAM_EMBEDDING_API_KEY before running engram.")
		}
	}

	if err := config.SaveToFile(cfg, "config.yaml"); err != nil {
		return err
	}
	fmt.Println("Wrote config.yaml. Run `engram serve` to start.")
	return nil
}

// storeKeyInVault creates or unlocks the vault and stores the embedding key.
func storeKeyInVault(apiKey string) error {
	vault := config.NewVault(config.VaultFile)

	if vault.Exists() {
		password, err := config.ReadPassword("Vault password: ")
		if err != nil {
			return err
		}
		if err := vault.Unlock(password); err != nil {
			return err
		}
	} else {
		password, err := config.ReadPassword("Choose a vault password: ")
		if err != nil {
			return err
		}
		confirm, err := config.ReadPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}
		if err := vault.Create(password); err != nil {
			return err
		}
	}
	defer vault.Lock()

	return vault.Set(config.VaultEmbeddingKey, apiKey)
}
