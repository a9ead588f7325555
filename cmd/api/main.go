package main

import (
	"os"
	"time"

	_ "commhub/docs" // Import swagger docs
	"commhub/internal/config"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// @title Communications Hub API
// @version 1.0
// @description Unified inbox for Telegram, WhatsApp, email, Facebook and Instagram conversations

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey RAGToken
// @in header
// @name X-RAG-TOKEN

var rootCmd = &cobra.Command{
	Use:   "commhub",
	Short: "Communications hub for the CRM",
	Long: `commhub receives customer messages from every connected platform,
stores them as conversations and serves the operator inbox.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(config.Load())
	},
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newSettingsCmd())
	// serve is the default command
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"serve"})
	}
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
