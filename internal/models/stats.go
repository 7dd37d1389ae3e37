package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/nutrition"
)

// DailyStats is the archived snapshot of one user's day. Rows are written
// once by the daily reset and never updated.
type DailyStats struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Date         time.Time `json:"date"`
	Calories     float64   `json:"calories"`
	Protein      float64   `json:"protein"`
	Carbs        float64   `json:"carbs"`
	Fat          float64   `json:"fat"`
	WeightChange float64   `json:"weight_change"`
	CreatedAt    time.Time `json:"created_at"`
}

// Usage log kinds.
const (
	UsageKindSearch   = "food_search"
	UsageKindAnalysis = "food_analysis"
	UsageKindInsights = "insights"
)

// UsageLogEntry is an append-only record of one successful AI call.
type UsageLogEntry struct {
	ID              uuid.UUID       `json:"id"`
	IdentityKey     string          `json:"identity_key"`
	UserID          *uuid.UUID      `json:"user_id,omitempty"`
	DeviceID        string          `json:"device_id,omitempty"`
	Kind            string          `json:"kind"`
	TimeRange       string          `json:"time_range,omitempty"`
	RequestPayload  json.RawMessage `json:"request_payload"`
	ResponsePayload json.RawMessage `json:"response_payload"`
	CreatedAt       time.Time       `json:"created_at"`
}

type MealEntry struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	nutrition.Record
	EatenAt time.Time `json:"eaten_at"`
}
