package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"

	"commhub/internal/auth"
	"commhub/internal/config"
	"commhub/internal/db"
	"commhub/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write platform credentials in the settings table",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get KEY...",
			Short: "Print settings; unset keys are skipped",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openSettings()
				if err != nil {
					return err
				}
				values, err := store.GetMany(cmd.Context(), args...)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(values))
				for k := range values {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Create or update a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openSettings()
				if err != nil {
					return err
				}
				if err := store.Set(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				log.Info().Str("key", args[0]).Msg("Setting saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "rag-token",
			Short: "Generate a RAG service token and store its bcrypt hash",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openSettings()
				if err != nil {
					return err
				}
				buf := make([]byte, 32)
				if _, err := rand.Read(buf); err != nil {
					return err
				}
				token := hex.EncodeToString(buf)
				hash, err := auth.HashToken(token)
				if err != nil {
					return err
				}
				if err := store.Set(cmd.Context(), auth.KeyRAGTokenHash, hash); err != nil {
					return err
				}
				// Only the hash is kept; the token is shown once
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			},
		},
	)
	return cmd
}

func openSettings() (*services.SettingsStore, error) {
	database, err := db.NewDatabase(config.Load().DB)
	if err != nil {
		return nil, err
	}
	return services.NewSettingsStore(database), nil
}
