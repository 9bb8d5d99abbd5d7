package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/config"
	"github.com/dunamismax/imageoptimizer/internal/logging"
	"github.com/dunamismax/imageoptimizer/internal/pipeline"
	"github.com/dunamismax/imageoptimizer/internal/storage"
	"github.com/dunamismax/imageoptimizer/internal/store"
	"github.com/dunamismax/imageoptimizer/internal/telemetry"
	"github.com/dunamismax/imageoptimizer/internal/transform"
	"github.com/dunamismax/imageoptimizer/internal/webhook"
	"github.com/dunamismax/imageoptimizer/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, "worker")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.ServiceWorker, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	if err := transform.Startup(); err != nil {
		return fmt.Errorf("start image backend: %w", err)
	}
	defer transform.Shutdown()

	storageClient, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return err
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return err
	}

	var jobStore store.JobStore = store.NewMemoryJobStore()
	if cfg.Database.DSN != "" {
		db, err := store.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if jobStore, err = store.NewPostgresJobStore(ctx, db); err != nil {
			return err
		}
	} else {
		logger.Warn("POSTGRES_DSN unset, job results are kept in memory only")
	}

	processor := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		transform.NewService(transform.Options{
			MaxImagePixels:   cfg.Limits.MaxImagePixels,
			SplitConcurrency: cfg.Limits.SplitConcurrency,
		}),
		pipeline.ObjectStoreEmitter{Storage: storageClient},
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, processor, webhook.NewClient(cfg.Webhook), jobStore)
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.String("bucket", storageClient.Bucket()),
		zap.String("backend", transform.Backend),
	)

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	return srv.Run()
}
