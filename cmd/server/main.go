// Package main is the entrypoint for the scrape-job coordinator server.
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

	"github.com/nickborrello/baystate-coordinator/internal/api"
	"github.com/nickborrello/baystate-coordinator/internal/api/handler"
	mw "github.com/nickborrello/baystate-coordinator/internal/api/middleware"
	"github.com/nickborrello/baystate-coordinator/internal/cache"
	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/internal/credentials"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch/workflow"
	"github.com/nickborrello/baystate-coordinator/internal/health"
	"github.com/nickborrello/baystate-coordinator/internal/scheduler"
	"github.com/nickborrello/baystate-coordinator/internal/store"
)

const (
	shutdownTimeout    = 30 * time.Second
	statusViewCacheTTL = 10 * time.Second
)

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
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"dispatch_mode", cfg.Dispatch.Mode,
		"chunk_size", cfg.Scheduler.ChunkSize,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and dispatcher
	pgStore := store.NewPostgresStore(pool)

	var trigger workflow.Trigger
	if cfg.Dispatch.Mode == config.DispatchModePush {
		trigger = workflow.NewHTTPClient(
			cfg.Dispatch.BaseURL, cfg.Dispatch.Token,
			cfg.Dispatch.Repository, cfg.Dispatch.WorkflowRef, cfg.Dispatch.Timeout)
	}
	dispatcher, err := dispatch.New(cfg.Dispatch, trigger)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	slog.Info("dispatcher initialized", "mode", dispatcher.Mode())

	// 6. Domain services
	sched := scheduler.NewService(pgStore, dispatcher,
		cfg.Scheduler.ChunkSize, cfg.Scheduler.ReclaimThreshold)
	progress := scheduler.NewProgress(pgStore, redisCache, statusViewCacheTTL)
	credMgr := credentials.NewManager(pgStore)
	checker := health.New(pgStore, redisCache, trigger, cfg.Scheduler, cfg.Dispatch)

	// 7. Background reaper for abandoned chunk claims
	reaper := scheduler.NewReaper(pgStore, cfg.Scheduler.ReclaimThreshold, cfg.Scheduler.ReaperInterval)
	go reaper.Run(ctx)

	// 8. Build router with dependencies
	auth := mw.NewAuth(credMgr)
	rateLimit := mw.NewRateLimit(redisCache, 120)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(checker),

		SubmitJobHandler: handler.NewSubmitJobHandler(sched),
		JobStatusHandler: handler.NewJobStatusHandler(progress),
		ListJobsHandler:  handler.NewListJobsHandler(pgStore),

		ClaimHandler:       handler.NewClaimHandler(sched),
		ChunkResultHandler: handler.NewChunkResultHandler(sched),
		JobResultHandler:   handler.NewJobResultHandler(sched),
		HeartbeatHandler:   handler.NewHeartbeatHandler(sched),
		ListRunnersHandler: handler.NewListRunnersHandler(pgStore, cfg.Scheduler.RunnerLiveness),

		IssueCredentialHandler:   handler.NewIssueCredentialHandler(credMgr),
		ListCredentialsHandler:   handler.NewListCredentialsHandler(credMgr),
		RevokeCredentialHandler:  handler.NewRevokeCredentialHandler(credMgr),
		RevokeRunnerCredsHandler: handler.NewRevokeRunnerCredentialsHandler(credMgr),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
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
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
