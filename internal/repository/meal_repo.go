package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/nutrition"
)

type MealRepo struct {
	db TxDB
}

func NewMealRepo(db TxDB) *MealRepo {
	return &MealRepo{db: db}
}

// Log stores a meal and adds it to today's accumulators atomically.
func (r *MealRepo) Log(ctx context.Context, userID uuid.UUID, rec nutrition.Record) (*models.MealEntry, *models.Profile, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m := &models.MealEntry{UserID: userID, Record: rec}
	err = tx.QueryRow(ctx, `
		INSERT INTO meal_entries (user_id, name, brand, calories, protein, carbs, fat)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING id, eaten_at
	`, userID, rec.Name, rec.Brand, rec.Calories, rec.Protein, rec.Carbs, rec.Fat).Scan(&m.ID, &m.EatenAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert meal: %w", err)
	}

	p, err := scanProfile(tx.QueryRow(ctx, `
		UPDATE profiles SET
			today_calories = today_calories + $2,
			today_protein = today_protein + $3,
			today_carbs = today_carbs + $4,
			today_fat = today_fat + $5,
			updated_at = now()
		WHERE user_id = $1
		RETURNING `+profileColumns,
		userID, rec.Calories, rec.Protein, rec.Carbs, rec.Fat))
	if err != nil {
		return nil, nil, fmt.Errorf("update accumulators: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return m, p, nil
}
