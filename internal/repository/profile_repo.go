package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalori/backend/internal/models"
)

type ProfileRepo struct {
	db TxDB
}

func NewProfileRepo(db TxDB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const profileColumns = `user_id, plan_tier, COALESCE(gender, ''), height_cm, age_years, weight,
	COALESCE(activity_level, ''), COALESCE(goal_type, ''), calorie_target,
	today_calories, today_protein, today_carbs, today_fat, ai_usage_count, last_reset_date, updated_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.UserID, &p.PlanTier, &p.Gender, &p.HeightCm, &p.AgeYears, &p.Weight,
		&p.ActivityLevel, &p.GoalType, &p.CalorieTarget,
		&p.TodayCalories, &p.TodayProtein, &p.TodayCarbs, &p.TodayFat, &p.AIUsageCount, &p.LastResetDate, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// CreateTx inserts an empty free-plan profile inside tx.
func (r *ProfileRepo) CreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (user_id, plan_tier) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, models.PlanFree)
	return err
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}

// PlanTier returns the stored plan name, ErrNotFound when the user has no profile.
func (r *ProfileRepo) PlanTier(ctx context.Context, userID uuid.UUID) (string, error) {
	var tier string
	err := r.db.QueryRow(ctx, `SELECT plan_tier FROM profiles WHERE user_id = $1`, userID).Scan(&tier)
	if err != nil {
		return "", notFound(err)
	}
	return tier, nil
}

func (r *ProfileRepo) SetPlanTier(ctx context.Context, userID uuid.UUID, tier string) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET plan_tier = $2, updated_at = now() WHERE user_id = $1`, userID, tier)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBodyStats writes the full body-stat set and the recomputed target.
func (r *ProfileRepo) UpdateBodyStats(ctx context.Context, p *models.Profile) error {
	err := r.db.QueryRow(ctx, `
		UPDATE profiles SET
			gender = NULLIF($2, ''), height_cm = $3, age_years = $4, weight = $5,
			activity_level = NULLIF($6, ''), goal_type = NULLIF($7, ''), calorie_target = $8,
			updated_at = now()
		WHERE user_id = $1
		RETURNING updated_at
	`, p.UserID, p.Gender, p.HeightCm, p.AgeYears, p.Weight, p.ActivityLevel, p.GoalType, p.CalorieTarget).Scan(&p.UpdatedAt)
	return notFound(err)
}

func (r *ProfileRepo) IncrementAIUsage(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE profiles SET ai_usage_count = ai_usage_count + 1 WHERE user_id = $1`, userID)
	return err
}

// ListUserIDs returns every profile owner, oldest first.
func (r *ProfileRepo) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ArchiveFunc turns a profile's accumulators into the day's snapshot and the
// new weight (nil keeps the stored weight).
type ArchiveFunc func(p *models.Profile) (models.DailyStats, *float64)

// ArchiveDay snapshots and zeroes one profile's accumulators for day in a
// single transaction. It reports false without changing anything when a
// snapshot for (user, day) already exists.
func (r *ProfileRepo) ArchiveDay(ctx context.Context, userID uuid.UUID, day time.Time, archive ArchiveFunc) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanProfile(tx.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return false, fmt.Errorf("lock profile: %w", err)
	}

	snap, newWeight := archive(p)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO daily_stats (user_id, date, calories, protein, carbs, fat, weight_change)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, date) DO NOTHING
		RETURNING id
	`, userID, day, snap.Calories, snap.Protein, snap.Carbs, snap.Fat, snap.WeightChange).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE profiles SET
			today_calories = 0, today_protein = 0, today_carbs = 0, today_fat = 0,
			ai_usage_count = 0, weight = $2, last_reset_date = $3, updated_at = now()
		WHERE user_id = $1
	`, userID, newWeight, day)
	if err != nil {
		return false, fmt.Errorf("reset accumulators: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
