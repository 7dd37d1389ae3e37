package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/models"
)

type StatsRepo struct {
	db DBTX
}

func NewStatsRepo(db DBTX) *StatsRepo {
	return &StatsRepo{db: db}
}

// ListRecent returns up to days snapshots for the user, newest first.
func (r *StatsRepo) ListRecent(ctx context.Context, userID uuid.UUID, days int) ([]*models.DailyStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, date, calories, protein, carbs, fat, weight_change, created_at
		FROM daily_stats WHERE user_id = $1
		ORDER BY date DESC
		LIMIT $2
	`, userID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DailyStats
	for rows.Next() {
		var s models.DailyStats
		if err := rows.Scan(&s.ID, &s.UserID, &s.Date, &s.Calories, &s.Protein, &s.Carbs, &s.Fat, &s.WeightChange, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
