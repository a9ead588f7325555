package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"commhub/internal/app"
	"commhub/internal/config"
	"commhub/internal/db"
	"commhub/internal/http/handlers"
	"commhub/internal/http/middleware"
	"commhub/internal/telemetry"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhooks and pollers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(config.Load(), skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not run AutoMigrate on startup")
	return cmd
}

func serve(cfg *config.Config, skipMigrations bool) error {
	// Initialize telemetry (optional service)
	shutdown, enabled, err := telemetry.InitTelemetry(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		shutdown = func() {}
	} else if enabled {
		log.Info().Msg("Telemetry initialized successfully")
	}
	defer shutdown()

	database, err := db.NewDatabase(cfg.DB)
	if err != nil {
		return err
	}
	if !skipMigrations {
		if err := db.RunMigrations(database); err != nil {
			return err
		}
	}

	services, err := app.NewServices(cfg, database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	waitWorkers := services.StartWorkers(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.Use(echomiddleware.Recover())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	} else {
		e.Use(echomiddleware.CORS())
	}
	e.Use(middleware.RequestID())
	e.Use(middleware.Telemetry(cfg.ServiceName))
	e.Use(middleware.Metrics())

	e.GET("/health", handlers.Health(handlers.DatabasePinger(services)))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Swagger - only enabled in development environment
	if cfg.IsDevelopment() {
		e.GET("/docs/*", echoSwagger.WrapHandler)
		e.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := e.Group("/api/v1")
	handlers.SetupRoutes(api, services)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("Server started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		waitWorkers()
		return err
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Pending media downloads and autobot replies are allowed to finish
	waitWorkers()
	log.Info().Msg("Server exited")
	return nil
}
