// Package profile serves the signed-in user's body stats, meal log and
// history.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/middleware"
	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/nutrition"
	"github.com/kalori/backend/internal/repository"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 90
)

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpdateBodyStats(ctx context.Context, p *models.Profile) error
}

type MealLogger interface {
	Log(ctx context.Context, userID uuid.UUID, rec nutrition.Record) (*models.MealEntry, *models.Profile, error)
}

type HistoryReader interface {
	ListRecent(ctx context.Context, userID uuid.UUID, days int) ([]*models.DailyStats, error)
}

type Handler struct {
	profiles ProfileStore
	meals    MealLogger
	history  HistoryReader
	log      *slog.Logger
}

func NewHandler(profiles ProfileStore, meals MealLogger, history HistoryReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{profiles: profiles, meals: meals, history: history, log: log}
}

// Response is a profile with its derived targets.
type Response struct {
	*models.Profile
	Macros nutrition.Macros `json:"macro_targets"`
}

func newResponse(p *models.Profile) Response {
	return Response{Profile: p, Macros: nutrition.MacroTargets(p.CalorieTarget)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) storeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		apierr.Write(w, h.log, apierr.ProfileNotFound())
		return
	}
	apierr.Write(w, h.log, apierr.Internal(err))
}

// GET /api/v1/profile
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetByUserID(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		h.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResponse(p))
}

// UpdateRequest carries body stats. Numbers may arrive as strings.
type UpdateRequest struct {
	Gender        *string           `json:"gender"`
	HeightCm      *nutrition.Number `json:"height"`
	AgeYears      *nutrition.Number `json:"age"`
	Weight        *nutrition.Number `json:"weight"`
	ActivityLevel *string           `json:"activity_level"`
	GoalType      *string           `json:"goal_type"`
}

func (req UpdateRequest) bodyStats() (models.BodyStats, error) {
	var b models.BodyStats
	if req.Gender != nil {
		g, ok := nutrition.ParseGender(*req.Gender)
		if !ok {
			return b, errors.New("gender must be male or female")
		}
		s := string(g)
		b.Gender = &s
	}
	if req.ActivityLevel != nil {
		a, ok := nutrition.ParseActivityLevel(*req.ActivityLevel)
		if !ok {
			return b, errors.New("unknown activity_level")
		}
		s := string(a)
		b.ActivityLevel = &s
	}
	if req.GoalType != nil {
		g, ok := nutrition.ParseGoal(*req.GoalType)
		if !ok {
			return b, errors.New("goal_type must be lose, maintain or gain")
		}
		s := string(g)
		b.GoalType = &s
	}
	for _, f := range []struct {
		name   string
		in     *nutrition.Number
		out    **float64
		lo, hi float64
	}{
		{"height", req.HeightCm, &b.HeightCm, 50, 272},
		{"age", req.AgeYears, &b.AgeYears, 10, 120},
		{"weight", req.Weight, &b.Weight, 20, 500},
	} {
		if f.in == nil {
			continue
		}
		if !f.in.Valid || f.in.Value < f.lo || f.in.Value > f.hi {
			return b, errors.New(f.name + " is out of range")
		}
		*f.out = f.in.Ptr()
	}
	return b, nil
}

// PUT /api/v1/profile
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid JSON"))
		return
	}
	stats, err := req.bodyStats()
	if err != nil {
		apierr.Write(w, h.log, apierr.Validation(err.Error()))
		return
	}

	p, err := h.profiles.GetByUserID(r.Context(), middleware.UserFromCtx(r.Context()))
	if err != nil {
		h.storeErr(w, err)
		return
	}
	stats.Apply(p)
	p.CalorieTarget = nutrition.DailyCalorieTarget(p.CalculatorInput())
	if err := h.profiles.UpdateBodyStats(r.Context(), p); err != nil {
		h.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newResponse(p))
}

// MealRequest is a food record to add to today's totals.
type MealRequest struct {
	Name     string           `json:"name"`
	Brand    string           `json:"brand"`
	Calories nutrition.Number `json:"calories"`
	Protein  nutrition.Number `json:"protein"`
	Carbs    nutrition.Number `json:"carbs"`
	Fat      nutrition.Number `json:"fat"`
}

type MealResponse struct {
	Meal  *models.MealEntry `json:"meal"`
	Today Totals            `json:"today"`
}

type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Target   int     `json:"calorie_target"`
}

// POST /api/v1/meals
func (h *Handler) LogMeal(w http.ResponseWriter, r *http.Request) {
	var req MealRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid JSON"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 200 {
		apierr.Write(w, h.log, apierr.Validation("name is required"))
		return
	}
	if !req.Calories.Valid {
		apierr.Write(w, h.log, apierr.Validation("calories is required"))
		return
	}
	rec := nutrition.Record{
		Name:     name,
		Brand:    strings.TrimSpace(req.Brand),
		Calories: req.Calories.Value,
		Protein:  req.Protein.Value,
		Carbs:    req.Carbs.Value,
		Fat:      req.Fat.Value,
	}.Clamped()

	meal, p, err := h.meals.Log(r.Context(), middleware.UserFromCtx(r.Context()), rec)
	if err != nil {
		h.storeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MealResponse{
		Meal: meal,
		Today: Totals{
			Calories: round1(p.TodayCalories),
			Protein:  round1(p.TodayProtein),
			Carbs:    round1(p.TodayCarbs),
			Fat:      round1(p.TodayFat),
			Target:   p.CalorieTarget,
		},
	})
}

// HistoryResponse lists snapshots newest first.
type HistoryResponse struct {
	Days []*models.DailyStats `json:"days"`
	From string               `json:"from,omitempty"`
	To   string               `json:"to,omitempty"`
}

// GET /api/v1/stats/history?days=N
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			apierr.Write(w, h.log, apierr.Validation("days must be between 1 and 90"))
			return
		}
		days = n
	}
	list, err := h.history.ListRecent(r.Context(), middleware.UserFromCtx(r.Context()), days)
	if err != nil {
		h.storeErr(w, err)
		return
	}
	resp := HistoryResponse{Days: list}
	if resp.Days == nil {
		resp.Days = []*models.DailyStats{}
	}
	if n := len(list); n > 0 {
		resp.From = list[n-1].Date.Format(time.DateOnly)
		resp.To = list[0].Date.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, resp)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
