package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kalori/backend/internal/config"
	"github.com/kalori/backend/internal/model"
	"github.com/kalori/backend/internal/quota"
	"github.com/kalori/backend/internal/storage"
)

// newLedger builds the quota ledger selected by QUOTA_BACKEND.
func newLedger(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (quota.Ledger, func(), error) {
	switch cfg.Quota.Backend {
	case config.QuotaRedis:
		opts, err := goredis.ParseURL(cfg.Quota.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("Quota ledger: redis")
		return quota.NewRedisLedger(client), func() { _ = client.Close() }, nil
	case config.QuotaMemory:
		slog.Warn("Quota ledger: in-memory, counts are lost on restart and not shared between replicas")
		return quota.NewMemoryLedger(nil), func() {}, nil
	default:
		slog.Info("Quota ledger: postgres")
		return quota.NewPostgresLedger(pool, nil), func() {}, nil
	}
}

// newBlobStore builds the meal image store selected by BLOB_BACKEND.
func newBlobStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	if cfg.Blob.Backend != config.BlobGCS {
		slog.Warn("Blob store: in-memory, the model provider cannot fetch these URLs")
		return storage.NewMemory(cfg.Blob.PublicBaseURL), func() {}, nil
	}
	gcs, err := storage.NewGCS(ctx, storage.GCSConfig{
		Bucket:        cfg.Blob.Bucket,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
		Credentials:   cfg.Blob.Credentials,
		Timeout:       cfg.Blob.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Blob store: gcs", "bucket", cfg.Blob.Bucket)
	return gcs, func() { _ = gcs.Close() }, nil
}

// newModelClient returns nil when no key is configured; AI routes then
// answer SERVER_MISCONFIGURED.
func newModelClient(cfg config.Config, log *slog.Logger) model.Client {
	if cfg.Model.APIKey == "" {
		log.Warn("MODEL_API_KEY is not set, AI routes are disabled")
		return nil
	}
	return model.NewOpenAI(cfg.Model.APIKey, cfg.Model.Name,
		model.WithBaseURL(cfg.Model.BaseURL),
		model.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout + 5*time.Second}),
	)
}
