// Package main is the entrypoint for the MatchIntel job orchestration server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/matchintel/internal/api"
	"github.com/kiranshivaraju/matchintel/internal/api/handler"
	mw "github.com/kiranshivaraju/matchintel/internal/api/middleware"
	"github.com/kiranshivaraju/matchintel/internal/api/response"
	"github.com/kiranshivaraju/matchintel/internal/blob"
	"github.com/kiranshivaraju/matchintel/internal/cache"
	"github.com/kiranshivaraju/matchintel/internal/config"
	"github.com/kiranshivaraju/matchintel/internal/engine"
	"github.com/kiranshivaraju/matchintel/internal/orchestrator"
	"github.com/kiranshivaraju/matchintel/internal/render"
	"github.com/kiranshivaraju/matchintel/internal/store"
	"github.com/kiranshivaraju/matchintel/internal/video"
	"github.com/kiranshivaraju/matchintel/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"engine", cfg.Engine.Provider,
		"store", cfg.Store.Backend,
		"video", cfg.Video.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the job store (runs migrations for postgres)
	jobStore, err := store.Open(ctx, cfg.Store, cfg.Database)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer jobStore.Close()
	slog.Info("job store opened", "backend", cfg.Store.Backend)

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create collaborators
	eng, err := engine.NewEngine(cfg.Engine)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	slog.Info("intelligence engine initialized", "engine", eng.Name())

	videoStorage, closeVideo, err := video.NewStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create video storage: %w", err)
	}
	defer closeVideo()

	if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	artifacts := render.NewService(blob.LocalFS{Root: cfg.Artifacts.Dir})

	// 5. Start the worker pool and orchestrator
	pool := worker.New(slog.Default(),
		worker.WithWorkers(cfg.Jobs.WorkerPoolSize),
		worker.WithQueueSize(cfg.Jobs.WorkerQueueSize),
	)

	svc := orchestrator.NewService(orchestrator.Deps{
		Store:     jobStore,
		Cache:     redisCache,
		Engine:    eng,
		Video:     videoStorage,
		Artifacts: artifacts,
		Pool:      pool,
	}, orchestrator.Config{
		AnalysisMaxDuration: cfg.Jobs.AnalysisMaxDuration,
		ExportMaxDuration:   cfg.Jobs.ExportMaxDuration,
		TransientRetryLimit: cfg.Jobs.TransientRetryLimit,
		ResultTTL:           cfg.Redis.ResultTTL,
	}, slog.Default())

	recovered, err := svc.RecoverOrphans(ctx)
	if err != nil {
		return fmt.Errorf("recover orphaned jobs: %w", err)
	}
	if recovered > 0 {
		slog.Info("orphaned jobs recovered", "count", recovered)
	}

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Redis.RateLimitPerMinute),

		HealthHandler: healthHandler(jobStore, redisCache),

		CreateAnalysis: handler.NewCreateAnalysisHandler(svc),
		ListAnalyses:   handler.NewListAnalysesHandler(svc),
		GetResult:      handler.NewGetResultHandler(svc),

		CreateExport:   handler.NewCreateExportHandler(svc),
		ListExports:    handler.NewListExportsHandler(svc),
		GetExport:      handler.NewGetExportHandler(svc),
		DownloadExport: handler.NewDownloadExportHandler(svc),

		GetStatus: handler.NewGetStatusHandler(svc),
		CancelJob: handler.NewCancelHandler(svc),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		drainPool(drainCtx, pool)
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout: stop accepting requests, then drain the pool
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	drainPool(shutdownCtx, pool)

	slog.Info("server stopped gracefully")
	return nil
}

type drainer interface {
	Shutdown(ctx context.Context) error
}

// drainPool waits for in-flight jobs until ctx ends. Jobs still running are
// picked up by RecoverOrphans on the next start.
func drainPool(ctx context.Context, pool drainer) {
	if err := pool.Shutdown(ctx); err != nil {
		slog.Warn("worker pool did not drain before timeout", "error", err)
	}
}

// healthHandler checks job store and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
