package commands

import (
	"fmt"

	"github.com/engramd/engram/pkg/engram/config"
	"github.com/spf13/cobra"
)

// newConfigCmd creates the `engram config` command group for secrets and
// configuration management.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration and secrets",
	}

	cmd.AddCommand(
		newConfigPathCmd(),
		newConfigSetKeyCmd(),
		newVaultCmd(),
	)
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Println("no config file found, using defaults")
				return nil
			}
			fmt.Println(path)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the embedding API key in the OS keyring",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !config.KeyringAvailable() {
				return fmt.Errorf("no OS keyring available, use the vault instead (engram config vault)")
			}
			key, err := config.ReadPassword("Embedding API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key")
			}
			if err := config.StoreKeyring(config.KeyringEmbeddingKey, key); err != nil {
				return err
			}
			fmt.Println("Key stored in the OS keyring.")
			return nil
		},
	}
}

// newVaultCmd creates the `engram config vault` group for the encrypted
// secret vault.
func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the encrypted secret vault",
		Long: `The vault stores secrets encrypted with AES-256-GCM under a
master password. During serve, vault secrets are injected into the
environment and picked up by the usual resolution chain.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create a new vault",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				vault := config.NewVault(config.VaultFile)
				if vault.Exists() {
					return fmt.Errorf("vault already exists at %s", vault.Path())
				}
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
				fmt.Println("Vault created at", vault.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <name>",
			Short: "Store a secret in the vault",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				vault, err := unlockVault()
				if err != nil {
					return err
				}
				defer vault.Lock()
				value, err := config.ReadPassword("Value for " + args[0] + ": ")
				if err != nil {
					return err
				}
				if err := vault.Set(args[0], value); err != nil {
					return err
				}
				fmt.Println("Stored", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <name>",
			Short: "Read a secret from the vault",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				vault, err := unlockVault()
				if err != nil {
					return err
				}
				defer vault.Lock()
				value, err := vault.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List secret names in the vault",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				vault, err := unlockVault()
				if err != nil {
					return err
				}
				defer vault.Lock()
				for _, name := range vault.List() {
					fmt.Println(name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Remove a secret from the vault",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				vault, err := unlockVault()
				if err != nil {
					return err
				}
				defer vault.Lock()
				if err := vault.Delete(args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "passwd",
			Short: "Change the vault master password",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				vault, err := unlockVault()
				if err != nil {
					return err
				}
				defer vault.Lock()
				newPassword, err := config.ReadPassword("New password: ")
				if err != nil {
					return err
				}
				confirm, err := config.ReadPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if newPassword != confirm {
					return fmt.Errorf("passwords do not match")
				}
				if err := vault.ChangePassword(newPassword); err != nil {
					return err
				}
				fmt.Println("Password changed.")
				return nil
			},
		},
	)
	return cmd
}

// unlockVault opens and unlocks the vault, prompting for the password.
func unlockVault() (*config.Vault, error) {
	vault := config.NewVault(config.VaultFile)
	if !vault.Exists() {
		return nil, fmt.Errorf("no vault at %s, run `engram config vault init` first", vault.Path())
	}
	password, err := config.ReadPassword("Vault password: ")
	if err != nil {
		return nil, err
	}
	if err := vault.Unlock(password); err != nil {
		return nil, err
	}
	return vault, nil
}
