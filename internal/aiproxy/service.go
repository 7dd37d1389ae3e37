// Package aiproxy is the quota-gated gateway to the nutrition model.
//
// Every call runs the same pipeline: validate the payload, resolve the
// caller's plan, consume one unit of today's quota, call the model under a
// deadline, validate and clamp its answer, record usage and respond. A unit
// consumed for a call that then fails upstream is released again.
package aiproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/metrics"
	"github.com/kalori/backend/internal/model"
	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/nutrition"
	"github.com/kalori/backend/internal/quota"
	"github.com/kalori/backend/internal/repository"
	"github.com/kalori/backend/internal/storage"
)

const (
	minQueryLen      = 2
	maxQueryLen      = 200
	maxSearchResults = 10
	maxTips          = 5
	maxImageBytes    = 8 << 20
)

// PlanStore reads plans and bumps the per-day AI counter on profiles.
type PlanStore interface {
	PlanTier(ctx context.Context, userID uuid.UUID) (string, error)
	IncrementAIUsage(ctx context.Context, userID uuid.UUID) error
}

// UsageLogger appends usage log rows.
type UsageLogger interface {
	Append(ctx context.Context, e *models.UsageLogEntry) error
}

type Config struct {
	Limits       quota.Limits
	ModelTimeout time.Duration
	// SideEffectTimeout bounds usage logging, quota release and blob removal.
	SideEffectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limits.Analysis == nil {
		c.Limits = quota.DefaultLimits()
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 25 * time.Second
	}
	if c.SideEffectTimeout <= 0 {
		c.SideEffectTimeout = 10 * time.Second
	}
	return c
}

type Service struct {
	ledger    quota.Ledger
	plans     PlanStore
	usage     UsageLogger
	model     model.Client
	blobs     storage.Store
	validator *Validator
	cfg       Config
	log       *slog.Logger

	wg sync.WaitGroup
}

// NewService wires the pipeline. A nil model client leaves the service up
// but every AI call answers SERVER_MISCONFIGURED.
func NewService(
	ledger quota.Ledger,
	plans PlanStore,
	usage UsageLogger,
	client model.Client,
	blobs storage.Store,
	validator *Validator,
	cfg Config,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:    ledger,
		plans:     plans,
		usage:     usage,
		model:     client,
		blobs:     blobs,
		validator: validator,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// Wait blocks until background usage writes have finished.
func (s *Service) Wait() { s.wg.Wait() }

// QuotaInfo is returned with every AI response.
type QuotaInfo struct {
	UsedToday int    `json:"usedToday"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Plan      string `json:"plan"`
}

// QuotaError is a QUOTA_EXCEEDED failure carrying the caller's quota state.
type QuotaError struct {
	Quota QuotaInfo
	err   *apierr.Error
}

func (e *QuotaError) Error() string { return e.err.Error() }
func (e *QuotaError) Unwrap() error { return e.err }

func quotaInfo(d quota.Decision, plan string) QuotaInfo {
	return QuotaInfo{UsedToday: d.Used, Limit: d.Limit, Remaining: d.Remaining, Plan: plan}
}

// planFor returns the plan name reported to clients.
func planFor(caller quota.Identity, tier quota.Tier) string {
	if !caller.Authenticated() {
		return "anonymous"
	}
	return string(tier)
}

// resolveTier loads the caller's plan. Devices have no plan.
func (s *Service) resolveTier(ctx context.Context, caller quota.Identity) (quota.Tier, error) {
	if !caller.Authenticated() {
		return quota.TierFree, nil
	}
	raw, err := s.plans.PlanTier(ctx, caller.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apierr.ProfileNotFound()
	}
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("load plan: %w", err))
	}
	return quota.NormalizeTier(raw), nil
}

// admit resolves the plan and consumes one unit of today's quota.
func (s *Service) admit(ctx context.Context, caller quota.Identity, f quota.Feature) (quota.Decision, quota.Tier, error) {
	if caller.Key() == "" {
		return quota.Decision{}, "", apierr.Unauthorized("missing credentials")
	}
	tier, err := s.resolveTier(ctx, caller)
	if err != nil {
		return quota.Decision{}, "", err
	}

	limit := s.cfg.Limits.For(f, tier, caller.Authenticated())
	if limit == 0 {
		metrics.QuotaDecisionsTotal.WithLabelValues(string(f), "premium_required").Inc()
		return quota.Decision{}, tier, apierr.PremiumRequired()
	}

	d, err := s.ledger.Consume(ctx, caller.KeyFor(f), limit)
	if err != nil {
		return quota.Decision{}, tier, apierr.Internal(fmt.Errorf("consume quota: %w", err))
	}
	if !d.Allowed {
		metrics.QuotaDecisionsTotal.WithLabelValues(string(f), "exceeded").Inc()
		return d, tier, &QuotaError{Quota: quotaInfo(d, planFor(caller, tier)), err: apierr.QuotaExceeded()}
	}
	metrics.QuotaDecisionsTotal.WithLabelValues(string(f), "allowed").Inc()
	return d, tier, nil
}

// release hands back a unit after an upstream failure.
func (s *Service) release(ctx context.Context, caller quota.Identity, f quota.Feature) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SideEffectTimeout)
	defer cancel()
	if err := s.ledger.Release(ctx, caller.KeyFor(f)); err != nil {
		s.log.Error("quota release failed", "identity", caller.Key(), "feature", f, "error", err)
	}
}

// invoke calls the model under the configured deadline and classifies failures.
func (s *Service) invoke(ctx context.Context, f quota.Feature, p model.Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.model.Complete(ctx, p)
	outcome := "ok"
	defer func() {
		metrics.ModelDurationSeconds.WithLabelValues(string(f), outcome).Observe(time.Since(start).Seconds())
	}()

	switch {
	case err == nil:
		return out.Content, nil
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
		return "", apierr.UpstreamTimeout(err)
	default:
		outcome = "error"
		if errors.Is(err, model.ErrAuthFailed) {
			s.log.Error("model provider rejected credentials", "feature", f)
		}
		return "", apierr.Upstream(err)
	}
}

// run is the shared consume → model → decode sequence. The unit is released
// when the model call or its decoding fails.
func (s *Service) run(ctx context.Context, caller quota.Identity, f quota.Feature, p model.Prompt, schema string, out any) (QuotaInfo, error) {
	d, tier, err := s.admit(ctx, caller, f)
	if err != nil {
		return QuotaInfo{}, err
	}

	content, err := s.invoke(ctx, f, p)
	if err != nil {
		s.release(ctx, caller, f)
		return QuotaInfo{}, err
	}
	if err := s.decodeOutput(content, schema, out); err != nil {
		s.release(ctx, caller, f)
		s.log.Warn("model output rejected", "feature", f, "error", err)
		return QuotaInfo{}, apierr.UpstreamInvalid(err)
	}
	return quotaInfo(d, planFor(caller, tier)), nil
}

func (s *Service) ready() error {
	if s.model == nil {
		return apierr.Misconfigured("AI provider is not configured")
	}
	return nil
}

// record writes the usage log row and bumps the profile counter in the
// background. Failures are logged and never reach the caller.
func (s *Service) record(ctx context.Context, caller quota.Identity, kind, timeRange string, req, resp any) {
	entry := &models.UsageLogEntry{
		IdentityKey: caller.Key(),
		DeviceID:    caller.DeviceID,
		Kind:        kind,
		TimeRange:   timeRange,
	}
	if caller.Authenticated() {
		id := caller.UserID
		entry.UserID = &id
		entry.DeviceID = ""
	}
	entry.RequestPayload, _ = json.Marshal(req)
	entry.ResponsePayload, _ = json.Marshal(resp)

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.cfg.SideEffectTimeout)
		defer cancel()

		if err := s.usage.Append(ctx, entry); err != nil {
			metrics.UsageLogFailuresTotal.Inc()
			s.log.Warn("usage log write failed", "identity", entry.IdentityKey, "kind", kind, "error", err)
		}
		if caller.Authenticated() {
			if err := s.plans.IncrementAIUsage(ctx, caller.UserID); err != nil {
				metrics.UsageLogFailuresTotal.Inc()
				s.log.Warn("ai usage counter update failed", "user_id", caller.UserID, "error", err)
			}
		}
	}()
}

type SearchResult struct {
	Foods []nutrition.Record `json:"foods"`
	Quota QuotaInfo          `json:"quota"`
}

// FoodSearch looks up foods by free text. Devices may search without an account.
func (s *Service) FoodSearch(ctx context.Context, caller quota.Identity, query string) (*SearchResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query = cleanQuery(query)
	if n := len([]rune(query)); n < minQueryLen || n > maxQueryLen {
		return nil, apierr.Validation(fmt.Sprintf("query must be %d to %d characters", minQueryLen, maxQueryLen))
	}

	user, err := render(searchTmpl, map[string]any{"Query": query, "Max": maxSearchResults})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	var out struct {
		Foods []nutrition.Record `json:"foods"`
	}
	q, err := s.run(ctx, caller, quota.FeatureSearch, model.Prompt{
		System: systemPrompt, User: user, Temperature: 0.2, MaxTokens: 1200, JSON: true,
	}, SchemaFoodSearch, &out)
	if err != nil {
		return nil, err
	}

	res := &SearchResult{Quota: q}
	for _, f := range out.Foods {
		if len(res.Foods) == maxSearchResults {
			break
		}
		f.Name = strings.TrimSpace(f.Name)
		f.Brand = strings.TrimSpace(f.Brand)
		res.Foods = append(res.Foods, f.Clamped())
	}
	s.record(ctx, caller, models.UsageKindSearch, "", map[string]string{"query": query}, res.Foods)
	return res, nil
}

func cleanQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '"' {
			return ' '
		}
		return r
	}, q)
	return strings.Join(strings.Fields(q), " ")
}

type AnalysisResult struct {
	Food       nutrition.Record   `json:"food"`
	Items      []nutrition.Record `json:"items"`
	Confidence float64            `json:"confidence"`
	Quota      QuotaInfo          `json:"quota"`
}

// FoodAnalysis estimates the nutrition of an uploaded meal photo. Once the
// path is accepted the photo is deleted on every exit path.
func (s *Service) FoodAnalysis(ctx context.Context, caller quota.Identity, imagePath string) (*AnalysisResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !caller.Authenticated() {
		return nil, apierr.Unauthorized("sign in to analyse photos")
	}
	key := storage.CleanKey(imagePath)
	if key == "" || storage.ContentTypeForKey(key) == "" {
		return nil, apierr.Validation("image_path must reference an uploaded image")
	}
	if !strings.HasPrefix(key, caller.UserID.String()+"/") {
		return nil, apierr.Validation("image_path does not belong to the caller")
	}
	defer s.removeBlob(ctx, key)

	user, err := render(analysisTmpl, nil)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	var out struct {
		nutrition.Record
		Confidence float64            `json:"confidence"`
		Items      []nutrition.Record `json:"items"`
	}
	q, err := s.run(ctx, caller, quota.FeatureAnalysis, model.Prompt{
		System:      systemPrompt,
		User:        user,
		ImageURLs:   []string{s.blobs.PublicURL(key)},
		Temperature: 0.2,
		MaxTokens:   800,
		JSON:        true,
	}, SchemaFoodAnalysis, &out)
	if err != nil {
		return nil, err
	}

	res := &AnalysisResult{
		Food:       out.Record.Clamped(),
		Confidence: nutrition.Clamp(out.Confidence, 0, 1),
		Items:      make([]nutrition.Record, 0, len(out.Items)),
		Quota:      q,
	}
	res.Food.Name = strings.TrimSpace(res.Food.Name)
	for _, it := range out.Items {
		res.Items = append(res.Items, it.Clamped())
	}
	s.record(ctx, caller, models.UsageKindAnalysis, "", map[string]string{"image_path": key}, res.Food)
	return res, nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SideEffectTimeout)
	defer cancel()
	if err := s.blobs.Remove(ctx, key); err != nil {
		s.log.Warn("meal image cleanup failed", "key", key, "error", err)
	}
}

// UploadMealImage stores a photo under the caller's prefix and returns its key.
func (s *Service) UploadMealImage(ctx context.Context, userID uuid.UUID, r io.Reader, contentType string) (string, string, error) {
	ext, ok := storage.ExtensionForContentType(contentType)
	if !ok {
		return "", "", apierr.Validation("image must be JPEG, PNG or WebP")
	}
	key := userID.String() + "/" + uuid.NewString() + ext
	if err := s.blobs.Upload(ctx, key, io.LimitReader(r, maxImageBytes), contentType); err != nil {
		return "", "", apierr.Internal(fmt.Errorf("upload meal image: %w", err))
	}
	return key, s.blobs.PublicURL(key), nil
}

type InsightsRequest struct {
	Range string       `json:"range"`
	Stats InsightStats `json:"stats"`
}

type InsightStats struct {
	Days          int      `json:"days"`
	AvgCalories   float64  `json:"avg_calories"`
	AvgProtein    float64  `json:"avg_protein"`
	AvgCarbs      float64  `json:"avg_carbs"`
	AvgFat        float64  `json:"avg_fat"`
	WeightStart   *float64 `json:"weight_start,omitempty"`
	WeightEnd     *float64 `json:"weight_end,omitempty"`
	CalorieTarget int      `json:"calorie_target,omitempty"`
}

func (r InsightsRequest) validate() error {
	maxDays := 0
	switch r.Range {
	case "week":
		maxDays = 7
	case "month":
		maxDays = 31
	default:
		return apierr.Validation(`range must be "week" or "month"`)
	}
	st := r.Stats
	if st.Days < 1 || st.Days > maxDays {
		return apierr.Validation(fmt.Sprintf("stats.days must be between 1 and %d", maxDays))
	}
	for _, v := range []float64{st.AvgCalories, st.AvgProtein, st.AvgCarbs, st.AvgFat} {
		if !within(v, 0, 20000) {
			return apierr.Validation("stats averages must be between 0 and 20000")
		}
	}
	for _, w := range []*float64{st.WeightStart, st.WeightEnd} {
		if w != nil && (!within(*w, 0, 500) || *w == 0) {
			return apierr.Validation("weights must be between 0 and 500 kg")
		}
	}
	if st.CalorieTarget < 0 || st.CalorieTarget > 10000 {
		return apierr.Validation("stats.calorie_target is out of range")
	}
	return nil
}

func within(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

type InsightsResult struct {
	Summary string    `json:"summary"`
	Tips    []string  `json:"tips"`
	Quota   QuotaInfo `json:"quota"`
}

// Insights turns a period summary into coaching text.
func (s *Service) Insights(ctx context.Context, caller quota.Identity, req InsightsRequest) (*InsightsResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if !caller.Authenticated() {
		return nil, apierr.Unauthorized("sign in to get insights")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	user, err := render(insightsTmpl, map[string]any{"Range": req.Range, "Stats": req.Stats, "MaxTips": maxTips})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	var out struct {
		Summary string   `json:"summary"`
		Tips    []string `json:"tips"`
	}
	q, err := s.run(ctx, caller, quota.FeatureInsights, model.Prompt{
		System: systemPrompt, User: user, Temperature: 0.5, MaxTokens: 700, JSON: true,
	}, SchemaInsights, &out)
	if err != nil {
		return nil, err
	}

	res := &InsightsResult{Summary: strings.TrimSpace(out.Summary), Tips: []string{}, Quota: q}
	for _, tip := range out.Tips {
		if tip = strings.TrimSpace(tip); tip != "" && len(res.Tips) < maxTips {
			res.Tips = append(res.Tips, tip)
		}
	}
	s.record(ctx, caller, models.UsageKindInsights, req.Range, req, res)
	return res, nil
}

// QuotaStatus reports today's usage for a feature without consuming.
func (s *Service) QuotaStatus(ctx context.Context, caller quota.Identity, f quota.Feature) (QuotaInfo, error) {
	if caller.Key() == "" {
		return QuotaInfo{}, apierr.Unauthorized("missing credentials")
	}
	tier, err := s.resolveTier(ctx, caller)
	if err != nil {
		return QuotaInfo{}, err
	}
	limit := s.cfg.Limits.For(f, tier, caller.Authenticated())
	used := 0
	if limit != 0 {
		if used, err = s.ledger.Used(ctx, caller.KeyFor(f)); err != nil {
			return QuotaInfo{}, apierr.Internal(fmt.Errorf("read quota: %w", err))
		}
	}
	return quotaInfo(quota.NewDecision(true, used, limit), planFor(caller, tier)), nil
}
