// Package reset closes out each user's day: it archives the accumulators
// into daily_stats, applies the estimated weight change and zeroes the
// counters for the next day.
package reset

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalori/backend/internal/metrics"
	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/repository"
)

// KcalPerKg is the energy usually quoted for one kilogram of body fat.
// Dividing a day's intake by it gives only a rough weight trend.
const KcalPerKg = 7000.0

const defaultConcurrency = 8

// Store is the persistence the sweep needs.
type Store interface {
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	ArchiveDay(ctx context.Context, userID uuid.UUID, day time.Time, archive repository.ArchiveFunc) (bool, error)
}

// Summary counts what a sweep did.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("processed=%d skipped=%d failed=%d", s.Processed, s.Skipped, s.Failed)
}

type Sweeper struct {
	store       Store
	log         *slog.Logger
	concurrency int
}

func NewSweeper(store Store, log *slog.Logger, concurrency int) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Sweeper{store: store, log: log, concurrency: concurrency}
}

// Run archives day for every profile. One profile failing does not stop
// the others; the returned error is only for failing to list profiles.
// Profiles already archived for day are skipped, so Run can be repeated.
func (s *Sweeper) Run(ctx context.Context, day time.Time) (Summary, error) {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list profiles: %w", err)
	}

	var (
		mu  sync.Mutex
		sum Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			archived, err := s.store.ArchiveDay(gctx, id, day, Archive)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				metrics.ResetProfilesTotal.WithLabelValues("failed").Inc()
				s.log.Error("daily reset failed for profile", "user_id", id, "day", day.Format(time.DateOnly), "error", err)
			case archived:
				sum.Processed++
				metrics.ResetProfilesTotal.WithLabelValues("processed").Inc()
			default:
				sum.Skipped++
				metrics.ResetProfilesTotal.WithLabelValues("skipped").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("daily reset finished", "day", day.Format(time.DateOnly),
		"processed", sum.Processed, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

// Archive builds the snapshot for a profile and its new weight.
// weight_change = today_calories / KcalPerKg. The stored weight is lowered
// by that amount and rounded to 10 g; an unknown weight stays unknown.
func Archive(p *models.Profile) (models.DailyStats, *float64) {
	change := round(p.TodayCalories/KcalPerKg, 4)
	snap := models.DailyStats{
		UserID:       p.UserID,
		Calories:     p.TodayCalories,
		Protein:      p.TodayProtein,
		Carbs:        p.TodayCarbs,
		Fat:          p.TodayFat,
		WeightChange: change,
	}
	if p.Weight == nil {
		return snap, nil
	}
	w := round(*p.Weight-change, 2)
	return snap, &w
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
