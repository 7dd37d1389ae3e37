package repository

import (
	"context"

	"github.com/kalori/backend/internal/models"
)

type UsageLogRepo struct {
	db DBTX
}

func NewUsageLogRepo(db DBTX) *UsageLogRepo {
	return &UsageLogRepo{db: db}
}

// Append writes one usage log row.
func (r *UsageLogRepo) Append(ctx context.Context, e *models.UsageLogEntry) error {
	req := e.RequestPayload
	if len(req) == 0 {
		req = []byte("{}")
	}
	resp := e.ResponsePayload
	if len(resp) == 0 {
		resp = []byte("{}")
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO ai_usage_logs (identity_key, user_id, device_id, kind, time_range, request_payload, response_payload)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7)
		RETURNING id, created_at
	`, e.IdentityKey, e.UserID, e.DeviceID, e.Kind, e.TimeRange, string(req), string(resp)).Scan(&e.ID, &e.CreatedAt)
}
