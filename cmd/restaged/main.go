package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/restage-ai/restage/pkg/activity"
	"github.com/restage-ai/restage/pkg/config"
	"github.com/restage-ai/restage/pkg/faultinject"
	"github.com/restage-ai/restage/pkg/genai"
	"github.com/restage-ai/restage/pkg/objectstore"
	"github.com/restage-ai/restage/pkg/orchestrator"
	"github.com/restage-ai/restage/pkg/project"
	"github.com/restage-ai/restage/pkg/purge"
	"github.com/restage-ai/restage/pkg/respcache"
	"github.com/restage-ai/restage/pkg/stages"
	"github.com/restage-ai/restage/pkg/telemetry"

	_ "github.com/lib/pq" // Postgres Driver
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "restaged: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	// Telemetry (inert unless TELEMETRY_ENABLED=true).
	tel, err := telemetry.New(ctx, &telemetry.Config{
		ServiceName:  "restaged",
		OTLPEndpoint: cfg.TelemetryEndpoint,
		Enabled:      cfg.TelemetryEnabled,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// Project rows.
	projects, closeDB, err := openProjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info("project store ready", "driver", cfg.DatabaseDriver)

	// Project assets.
	objects, err := objectstore.NewStore(ctx, objectstore.FactoryConfig{
		Backend: cfg.ObjectStoreBackend,
		S3: objectstore.S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		},
		GCSBucket: cfg.GCSBucket,
	})
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	logger.Info("object store ready", "backend", cfg.ObjectStoreBackend)

	// Fault injection is a test-environment feature; production runs with a
	// nil injector.
	var faults faultinject.Injector
	if cfg.FaultInjectEnabled {
		faults = faultinject.NewRedisInjector(cfg.RedisAddr, "", 0, "restage:fault:next")
		logger.Warn("fault injection armed via redis", "addr", cfg.RedisAddr)
	}

	cache := respcache.New(cfg.CacheRoot, logger)
	if cache.Enabled() {
		logger.Info("response cache enabled", "root", cfg.CacheRoot)
	}

	gen := genai.NewHTTPClient(cfg.GenBaseURL, cfg.GenAPIKey, cfg.GenRPS)
	runner := stages.NewRunner(gen, cache, objects, faults, cfg.GenModel, logger)

	policy := activity.Policy{
		MaxAttempts: profile.Retry.MaxAttempts,
		BaseDelay:   time.Duration(profile.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(profile.Retry.MaxDelayMS) * time.Millisecond,
		Logger:      logger,
	}

	orchCfg := orchestrator.Config{
		Projects:              projects,
		Activities:            runner,
		Policy:                policy,
		OptionCount:           profile.Generation.OptionCount,
		CompletionPurgeDelay:  profile.CompletionDelay(),
		AbandonmentPurgeDelay: profile.AbandonmentDelay(),
		Logger:                logger,
	}
	if tel.Enabled() {
		orchCfg.Telemetry = tel
	}
	orch := orchestrator.New(orchCfg)

	purgeSvc := purge.NewService(objects, projects, logger)
	worker := orchestrator.NewPurgeWorker(purgeSvc, policy, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go worker.Run(workerCtx, orch.PurgeRequests())

	logger.Info("restaged ready",
		"option_count", profile.Generation.OptionCount,
		"completion_purge_delay", profile.CompletionDelay(),
		"abandonment_purge_delay", profile.AbandonmentDelay())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	return nil
}

// openProjectStore builds the configured project.Store and returns a close
// function for the underlying database handle.
func openProjectStore(ctx context.Context, cfg *config.Config) (project.Store, func(), error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := project.NewPostgresStore(db)
		if err := store.Init(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init project store: %w", err)
		}
		return store, func() { _ = db.Close() }, nil
	case "sqlite", "":
		store, err := project.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "memory":
		return project.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.DatabaseDriver)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
