package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"unified_gateway/internal/auth"
	"unified_gateway/internal/completion"
	"unified_gateway/internal/providers"
	"unified_gateway/internal/utils"
)

func main() {
	// Keep stdout for command output.
	utils.SetDefaultOutput(os.Stderr)

	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(lookup providers.LookupFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect the gateway's provider catalog",
		Long: `Inspect which LLM providers the gateway would activate from the
current environment, list their models, and hash client API keys.`,
		SilenceUsage: true,
	}

	// registry is built lazily so hash-key never touches the environment.
	registry := func() *providers.Registry {
		return providers.NewRegistry(providers.DefaultCatalog(), lookup)
	}

	rootCmd.AddCommand(newListCmd(registry), newModelsCmd(registry), newHashKeyCmd())
	return rootCmd
}

// errOffline is returned by the CLI's client. The commands here only read
// the registry, so a completion reaching the client is a programming error.
var errOffline = errors.New("completions are not available from the providers CLI")

func newDispatcher(reg *providers.Registry) *completion.Dispatcher {
	offline := completion.ClientFunc(func(context.Context, completion.Call) (*completion.Result, error) {
		return nil, errOffline
	})
	return completion.New(reg, offline)
}

// --- list command ---

func newListCmd(registry func() *providers.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog providers and whether they are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry()
			infos := newDispatcher(reg).ListProviders()

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			out := cmd.OutOrStdout()
			for _, info := range infos {
				state := "-"
				if info.IsConfigured {
					state = "configured"
				}
				line := fmt.Sprintf("  %-12s %-11s %s", info.Name, state, strings.Join(info.Models, ", "))
				if missing := reg.MissingRequired(info.Name); len(missing) > 0 {
					line += " (missing " + strings.Join(missing, ", ") + ")"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the listing as JSON")
	return cmd
}

// --- models command ---

func newModelsCmd(registry func() *providers.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "models <provider>",
		Short: "List the models of a configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := newDispatcher(registry()).ListModels(args[0])
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

// --- hash-key command ---

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print an argon2id hash for GATEWAY_API_KEY_HASHES",
		Long: `Hash a client API key so it can be configured through
GATEWAY_API_KEY_HASHES instead of in plaintext. Pass "-" to read the key
from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if key == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading key: %w", err)
				}
				key = strings.TrimSpace(string(data))
			}
			if key == "" {
				return fmt.Errorf("key must not be empty")
			}

			hash, err := auth.HashKeyArgon2(key)
			if err != nil {
				return fmt.Errorf("hashing key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
