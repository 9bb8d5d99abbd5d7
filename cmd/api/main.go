package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/api"
	"github.com/dunamismax/imageoptimizer/internal/auth"
	"github.com/dunamismax/imageoptimizer/internal/config"
	"github.com/dunamismax/imageoptimizer/internal/logging"
	"github.com/dunamismax/imageoptimizer/internal/queue"
	"github.com/dunamismax/imageoptimizer/internal/ratelimit"
	"github.com/dunamismax/imageoptimizer/internal/storage"
	"github.com/dunamismax/imageoptimizer/internal/store"
	"github.com/dunamismax/imageoptimizer/internal/telemetry"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, "api")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.ServiceAPI, cfg.Tracing, logger)
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

	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = store.OpenPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	authService, err := newAuthService(ctx, cfg.Auth, db)
	if err != nil {
		return err
	}
	if cfg.Auth.SeedEmail != "" {
		if err := authService.Seed(ctx, cfg.Auth.SeedName, cfg.Auth.SeedEmail, cfg.Auth.SeedPassword); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		logger.Info("seed user ready", zap.String("email", auth.NormalizeEmail(cfg.Auth.SeedEmail)))
	}

	deps := api.Deps{
		Logger: logger,
		Transforms: transform.NewService(transform.Options{
			MaxImagePixels:   cfg.Limits.MaxImagePixels,
			SplitConcurrency: cfg.Limits.SplitConcurrency,
		}),
		Auth: authService,
	}

	if cfg.API.EnableJobs {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn("queue client close failed", zap.Error(err))
			}
		}()

		storageClient, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return err
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return err
		}

		deps.Queue = queueClient
		deps.Storage = storageClient
		deps.JobStore, err = newJobStore(ctx, db)
		if err != nil {
			return err
		}
		if db == nil {
			logger.Warn("POSTGRES_DSN unset, job state is kept in memory and worker updates will not be visible")
		}
		logger.Info("jobs enabled", zap.String("queue", cfg.Queue.Name), zap.String("bucket", storageClient.Bucket()))
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(cfg.Queue.RedisOptions())
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisLimiter(redisClient, ratelimit.Options{
			Capacity:  cfg.RateLimit.Capacity,
			Window:    cfg.RateLimit.Window,
			KeyPrefix: cfg.RateLimit.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		deps.RateLimiter = limiter
	}

	app := api.NewServer(deps, api.Options{
		MaxBodyBytes:          cfg.Limits.MaxBodyBytes,
		PresignTTL:            cfg.API.PresignTTL,
		QueueName:             cfg.Queue.Name,
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHdr,
		RateLimitBytesPerUnit: cfg.RateLimit.BytesPerUnit,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.API.Addr),
			zap.String("backend", transform.Backend),
			zap.Bool("jobs", cfg.API.EnableJobs),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func newAuthService(ctx context.Context, cfg config.AuthConfig, db *sql.DB) (*auth.Service, error) {
	if db == nil {
		return auth.NewService(store.NewMemoryUserRepository(), cfg.BcryptCost), nil
	}
	repo, err := store.NewPostgresUserRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	return auth.NewService(repo, cfg.BcryptCost), nil
}

func newJobStore(ctx context.Context, db *sql.DB) (store.JobStore, error) {
	if db == nil {
		return store.NewMemoryJobStore(), nil
	}
	return store.NewPostgresJobStore(ctx, db)
}
