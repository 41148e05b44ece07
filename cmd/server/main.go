package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/internal/api"
	"github.com/fhir-dataset-forge/internal/config"
	"github.com/fhir-dataset-forge/internal/domain"
	"github.com/fhir-dataset-forge/internal/store"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)

	runStore, err := openStore(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer runStore.Close()

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting FHIR dataset forge server")

	// Create server
	server := api.NewServer(configManager, runStore, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// openStore opens the configured run store and, for PostgreSQL, applies any
// pending migrations first.
func openStore(cfg *domain.Config, logger *logrus.Logger) (domain.RunStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		runner, err := store.NewMigrationRunner(cfg.Store.URL, cfg.Store.MigrationsPath, logger)
		if err != nil {
			return nil, err
		}
		defer runner.Close()
		if err := runner.Up(context.Background()); err != nil {
			return nil, err
		}
		return store.NewPostgresStoreFromURL(cfg.Store.URL)
	default:
		return store.NewSQLiteStore(cfg.Store.Path)
	}
}
