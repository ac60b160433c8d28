package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamscao/ctapi/internal/api"
	"github.com/adamscao/ctapi/internal/config"
	"github.com/adamscao/ctapi/internal/db"
	"github.com/adamscao/ctapi/internal/db/repository"
	"github.com/adamscao/ctapi/internal/expiry"
	"github.com/adamscao/ctapi/internal/logging"
	"github.com/adamscao/ctapi/internal/metrics"
	"github.com/adamscao/ctapi/internal/query"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/ctapi/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CT Query API Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting CT query API server", "version", Version, "commit", Commit, "config", *configPath)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	logger.Info("connecting to database", "path", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	metrics.SetEnabled(cfg.Metrics.Enabled)

	// Initialize repositories
	certRepo := repository.NewCertRepository(database.DB, cfg.Query.MaxResults)
	keyRepo := repository.NewAPIKeyRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	dispatcher := query.NewDispatcher(certRepo, query.Options{
		CorpDomainSuffix: cfg.Corp.DomainSuffix,
		Timeout:          cfg.Query.Timeout,
		Logger:           logger,
	})

	// Keep expired flags current
	sweeper := expiry.NewSweeper(certRepo, cfg.Expiry.SweepInterval, logger)
	go sweeper.Run(ctx)

	// Create HTTP server
	server := api.NewServer(cfg, api.Dependencies{
		Dispatcher: dispatcher,
		Keys:       keyRepo,
		Auditor:    auditRepo,
		Health:     database,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	// Wait for interrupt signal
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}
