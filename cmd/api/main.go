package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/kalori/backend/internal/aiproxy"
	"github.com/kalori/backend/internal/auth"
	"github.com/kalori/backend/internal/config"
	"github.com/kalori/backend/internal/db"
	"github.com/kalori/backend/internal/metrics"
	"github.com/kalori/backend/internal/observability"
	"github.com/kalori/backend/internal/profile"
	"github.com/kalori/backend/internal/repository"
	"github.com/kalori/backend/internal/reset"
	"github.com/kalori/backend/internal/router"
)

func main() {
	cfg, err := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, logger, observability.OtelConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "kalori-api",
		Environment: os.Getenv("APP_ENV"),
	})

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	profileRepo := repository.NewProfileRepo(pool)
	usageRepo := repository.NewUsageLogRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)
	mealRepo := repository.NewMealRepo(pool)

	// Auth
	authSvc := auth.NewService(auth.NewRepository(pool, profileRepo), cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// AI proxy
	ledger, closeLedger, err := newLedger(ctx, cfg, pool)
	if err != nil {
		slog.Error("Quota ledger init failed", "error", err)
		os.Exit(1)
	}
	defer closeLedger()

	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		slog.Error("Blob store init failed", "error", err)
		os.Exit(1)
	}
	defer closeBlobs()

	validator, err := aiproxy.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}
	aiSvc := aiproxy.NewService(ledger, profileRepo, usageRepo, newModelClient(cfg, logger), blobs, validator,
		aiproxy.Config{Limits: cfg.Quota.Limits, ModelTimeout: cfg.Model.Timeout, SideEffectTimeout: cfg.Blob.Timeout},
		logger)

	// Daily reset
	sweeper := reset.NewSweeper(profileRepo, logger, cfg.Reset.Concurrency)
	workers := river.NewWorkers()
	river.AddWorker(workers, reset.NewWorker(sweeper))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{reset.PeriodicJob()},
		Logger:       logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(reg)

	handler := router.New(router.Deps{
		Auth:    authHandler,
		AI:      aiproxy.NewHandler(aiSvc, logger),
		Profile: profile.NewHandler(profileRepo, mealRepo, statsRepo, logger),
		Reset:   reset.NewHandler(sweeper, cfg.CronSecret, logger),
		Tokens:  authSvc,
		Health: func(w http.ResponseWriter, r *http.Request) {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		},
		Metrics: metrics.Handler(reg),
		Log:     logger,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Device-ID"},
		MaxAge:         600,
	}).Handler(handler)

	// Start River client (processes jobs)
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Model.Timeout + 15*time.Second,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	aiSvc.Wait()
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River stop failed", "error", err)
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		slog.Error("OTel shutdown failed", "error", err)
	}
}
