package main

import (
	"commhub/internal/config"
	"commhub/internal/db"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			database, err := db.NewDatabase(cfg.DB)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(database); err != nil {
				return err
			}
			log.Info().Msg("Database is up to date")
			return nil
		},
	}
}
