package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/docsmith/docsync/internal/config"
	"github.com/docsmith/docsync/internal/docgen"
	"github.com/docsmith/docsync/internal/lookup"
	"github.com/docsmith/docsync/internal/migration"
	"github.com/docsmith/docsync/internal/pipeline"
	"github.com/docsmith/docsync/internal/publish"
	"github.com/docsmith/docsync/internal/repository"
	"github.com/docsmith/docsync/internal/upstream"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// shutdownGrace bounds how long shutdown waits for an in-flight run.
const shutdownGrace = 5 * time.Minute

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	orchestrator := buildOrchestrator(cfg, db, logger)

	runOnce := func(ctx context.Context) {
		run, err := orchestrator.Run(ctx, pipeline.Options{
			Force:        cfg.Sync.ForceFull,
			TenantFilter: cfg.Sync.TenantFilter,
		})
		switch {
		case errors.Is(err, repository.ErrRunActive):
			logger.Warn().Msg("previous sync run still active, skipping")
		case err != nil:
			logger.Error().Err(err).Msg("sync run aborted")
		default:
			logger.Info().Str("run_id", run.ID).Msg("sync run complete")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sync.Schedule == "" {
		runOnce(ctx)
		return
	}

	// Scheduled mode: the cron loop invokes one pass per tick until a
	// shutdown signal arrives.
	var inFlight sync.WaitGroup
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Sync.Schedule, func() {
		inFlight.Add(1)
		defer inFlight.Done()
		runOnce(ctx)
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Sync.Schedule).Msg("Invalid sync schedule")
	}
	scheduler.Start()
	logger.Info().Str("schedule", cfg.Sync.Schedule).Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Msgf("Received signal: %s. Shutting down...", sig)

	scheduler.Stop()

	// Wait for the current run to reach a terminal state, or force-terminate
	// after the grace period.
	done := make(chan struct{})
	go func() {
		inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info().Msg("Shutdown complete.")
	case <-time.After(shutdownGrace):
		cancel()
		logger.Warn().Msg("Grace period elapsed, terminating in-flight run.")
	}
}

func buildOrchestrator(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *pipeline.Orchestrator {
	client := upstream.NewClient(upstream.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		PageSize:   cfg.API.PageSize,
		MaxPages:   cfg.API.MaxPages,
		MaxRetries: cfg.API.MaxRetries,
		MaxBackoff: cfg.API.MaxBackoff,
		Timeout:    cfg.API.Timeout,
	}, logger)

	var resolver pipeline.TableResolver
	if cfg.Sync.ResolveTables {
		resolver = lookup.NewResolver(client, cfg.Sync.SampleRows, logger)
	}

	docs := docgen.NewHTTPService(cfg.Docs.ServiceURL, cfg.Docs.Timeout, logger)

	publisher, err := publish.NewObjectStore(context.Background(), publish.ObjectStoreConfig{
		Endpoint:  cfg.Publish.Endpoint,
		AccessKey: cfg.Publish.AccessKey,
		SecretKey: cfg.Publish.SecretKey,
		Bucket:    cfg.Publish.Bucket,
		Region:    cfg.Publish.Region,
		UseSSL:    cfg.Publish.UseSSL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure publisher")
	}

	return pipeline.NewOrchestrator(pipeline.Config{
		API:          client,
		Catalog:      repository.NewCatalogRepository(db),
		Snapshots:    repository.NewSnapshotRepository(db),
		Runs:         repository.NewRunRepository(db),
		Resolver:     resolver,
		Generator:    docs,
		Classifier:   docs,
		Summarizer:   docs,
		Publisher:    publisher,
		ActivePrefix: cfg.Sync.ActivePrefix,
	}, logger)
}
