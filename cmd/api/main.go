package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/api"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/database"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/imagestore"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/repository"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/service"
)

const cacheCleanupInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting Facecheck API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("locator", cfg.Locator),
		slog.String("extractor", cfg.Extractor),
		slog.String("camera", cfg.Camera),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditLogger := audit.NewSlogLogger(logger)

	store, err := imagestore.New(cfg.PhotosDir, cfg.ImageFormat)
	if err != nil {
		return fmt.Errorf("failed to open photos dir: %w", err)
	}

	camera, err := face.NewCamera(cfg)
	if err != nil {
		return fmt.Errorf("failed to create camera: %w", err)
	}

	locator, err := face.NewLocator(ctx, cfg, auditLogger)
	if err != nil {
		return fmt.Errorf("failed to create face locator: %w", err)
	}

	extractor, err := face.NewExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding extractor: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithAuditLogger(auditLogger),
		service.WithProviderName(cfg.Locator + "/" + cfg.Extractor),
	}

	// Postgres is optional: it backs the shared embedding cache and the
	// verification log.
	var pool *pgxpool.Pool
	var cacheDB cache.DB
	deps := &api.Dependencies{
		DefaultIdentity: cfg.DefaultIdentity,
		CORSOrigins:     cfg.CORSOrigins,
	}

	if cfg.HasDatabase() {
		if cfg.DatabaseAutoMigrate {
			if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("database migrations applied")
		}

		pool, err = database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		verificationRepo := repository.NewVerificationRepository(pool)
		cacheDB = pool
		deps.DB = pool
		deps.History = verificationRepo
		opts = append(opts, service.WithVerificationRecorder(verificationRepo))
		logger.Info("database connected")
	}

	embeddingCache, err := face.NewEmbeddingCache(cfg, cacheDB)
	if err != nil {
		return fmt.Errorf("failed to create embedding cache: %w", err)
	}
	opts = append(opts, service.WithEmbeddingCache(embeddingCache, face.EmbeddingNamespace(cfg), cfg.EmbeddingCacheTTL))

	if expirer, ok := embeddingCache.(cache.Expirer); ok {
		go runCacheCleanup(ctx, expirer, logger)
	}

	if cfg.RateLimitMax > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Max:    cfg.RateLimitMax,
			Window: cfg.RateLimitWindow,
		})
		defer limiter.Stop()
		deps.RateLimit = limiter
	}

	deps.Verifier = service.NewVerifier(
		store,
		camera,
		locator,
		extractor,
		matcher.New(cfg.MatchThreshold),
		opts...,
	)

	// Setup router
	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")

	return nil
}

// runCacheCleanup purges expired reference embeddings until ctx is done.
func runCacheCleanup(ctx context.Context, expirer cache.Expirer, logger *slog.Logger) {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := expirer.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("embedding cache cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				logger.Debug("embedding cache cleanup", slog.Int64("removed", removed))
			}
		}
	}
}
