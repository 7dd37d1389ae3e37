package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/nutrition"
)

// Plan tiers as stored in profiles.plan_tier.
const (
	PlanFree      = "free"
	PlanBasic     = "basic"
	PlanPro       = "pro"
	PlanUnlimited = "unlimited"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile carries body stats, the plan and the running totals for the
// current day. The today_* accumulators and ai_usage_count are zeroed by
// the daily reset.
type Profile struct {
	UserID        uuid.UUID  `json:"user_id"`
	PlanTier      string     `json:"plan_tier"`
	Gender        string     `json:"gender"`
	HeightCm      *float64   `json:"height"`
	AgeYears      *float64   `json:"age"`
	Weight        *float64   `json:"weight"`
	ActivityLevel string     `json:"activity_level"`
	GoalType      string     `json:"goal_type"`
	CalorieTarget int        `json:"calorie_target"`
	TodayCalories float64    `json:"today_calories"`
	TodayProtein  float64    `json:"today_protein"`
	TodayCarbs    float64    `json:"today_carbs"`
	TodayFat      float64    `json:"today_fat"`
	AIUsageCount  int        `json:"ai_usage_count"`
	LastResetDate *time.Time `json:"last_reset_date,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CalculatorInput returns the body stats in the calculator's shape.
func (p *Profile) CalculatorInput() nutrition.Profile {
	return nutrition.Profile{
		Gender:        p.Gender,
		WeightKg:      nutrition.FromPtr(p.Weight),
		HeightCm:      nutrition.FromPtr(p.HeightCm),
		AgeYears:      nutrition.FromPtr(p.AgeYears),
		ActivityLevel: p.ActivityLevel,
		Goal:          p.GoalType,
	}
}

// BodyStats is a partial profile update; nil fields are left unchanged.
type BodyStats struct {
	Gender        *string
	HeightCm      *float64
	AgeYears      *float64
	Weight        *float64
	ActivityLevel *string
	GoalType      *string
}

// Apply copies the set fields onto p.
func (b BodyStats) Apply(p *Profile) {
	if b.Gender != nil {
		p.Gender = *b.Gender
	}
	if b.HeightCm != nil {
		p.HeightCm = b.HeightCm
	}
	if b.AgeYears != nil {
		p.AgeYears = b.AgeYears
	}
	if b.Weight != nil {
		p.Weight = b.Weight
	}
	if b.ActivityLevel != nil {
		p.ActivityLevel = *b.ActivityLevel
	}
	if b.GoalType != nil {
		p.GoalType = *b.GoalType
	}
}
