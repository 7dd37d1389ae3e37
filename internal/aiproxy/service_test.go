package aiproxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/model"
	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/quota"
	"github.com/kalori/backend/internal/repository"
	"github.com/kalori/backend/internal/storage"
)

type fakePlans struct {
	mu     sync.Mutex
	tiers  map[uuid.UUID]string
	bumped map[uuid.UUID]int
}

func newFakePlans() *fakePlans {
	return &fakePlans{tiers: map[uuid.UUID]string{}, bumped: map[uuid.UUID]int{}}
}

func (p *fakePlans) PlanTier(_ context.Context, id uuid.UUID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tiers[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return t, nil
}

func (p *fakePlans) IncrementAIUsage(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bumped[id]++
	return nil
}

func (p *fakePlans) Bumped(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bumped[id]
}

type fakeUsage struct {
	mu      sync.Mutex
	entries []models.UsageLogEntry
	err     error
}

func (u *fakeUsage) Append(_ context.Context, e *models.UsageLogEntry) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.entries = append(u.entries, *e)
	return nil
}

func (u *fakeUsage) Entries() []models.UsageLogEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.UsageLogEntry(nil), u.entries...)
}

type fixture struct {
	svc    *Service
	ledger *quota.MemoryLedger
	plans  *fakePlans
	usage  *fakeUsage
	blobs  *storage.Memory
}

func newFixture(t *testing.T, client model.Client, cfg Config) *fixture {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	f := &fixture{
		ledger: quota.NewMemoryLedger(nil),
		plans:  newFakePlans(),
		usage:  &fakeUsage{},
		blobs:  storage.NewMemory("https://blobs.test"),
	}
	f.svc = NewService(f.ledger, f.plans, f.usage, client, f.blobs, v, cfg, nil)
	return f
}

func (f *fixture) user(tier string) quota.Identity {
	id := uuid.New()
	f.plans.tiers[id] = tier
	return quota.Identity{UserID: id}
}

func (f *fixture) upload(t *testing.T, caller quota.Identity) string {
	t.Helper()
	key := caller.UserID.String() + "/meal.jpg"
	require.NoError(t, f.blobs.Upload(context.Background(), key, strings.NewReader("jpeg"), "image/jpeg"))
	return key
}

func codeOf(err error) string {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func foodsJSON(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"name":"food %d","brand":null,"calories":100,"protein":5,"carbs":10,"fat":2}`, i)
	}
	return `{"foods":[` + strings.Join(items, ",") + `]}`
}

const pastaJSON = `{"name":"Pasta","calories":1250,"protein":31.26,"carbs":-4,"fat":20,"confidence":1.7,
"items":[{"name":"Sauce","calories":120,"protein":2,"carbs":10,"fat":500}]}`

func TestFoodSearch_ShortQueryRejectedBeforeQuota(t *testing.T) {
	mock := model.NewMock(model.WithReply(foodsJSON(1)))
	f := newFixture(t, mock, Config{})
	caller := quota.Identity{DeviceID: "dev-1"}

	for _, q := range []string{"", " a ", "\n\t", strings.Repeat("x", 201)} {
		_, err := f.svc.FoodSearch(context.Background(), caller, q)
		assert.Equal(t, apierr.CodeValidation, codeOf(err), "query %q", q)
	}
	used, err := f.ledger.Used(context.Background(), caller.KeyFor(quota.FeatureSearch))
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Empty(t, mock.Calls())
}

func TestFoodSearch_DeviceGetsOneSearchPerDay(t *testing.T) {
	mock := model.NewMock(model.WithReply(foodsJSON(2)))
	f := newFixture(t, mock, Config{})
	caller := quota.Identity{DeviceID: "dev-1"}

	res, err := f.svc.FoodSearch(context.Background(), caller, "  greek   yogurt ")
	require.NoError(t, err)
	assert.Len(t, res.Foods, 2)
	assert.Equal(t, QuotaInfo{UsedToday: 1, Limit: 1, Remaining: 0, Plan: "anonymous"}, res.Quota)
	require.Len(t, mock.Calls(), 1)
	assert.Contains(t, mock.Calls()[0].User, `"greek yogurt"`)

	_, err = f.svc.FoodSearch(context.Background(), caller, "greek yogurt")
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, apierr.CodeQuotaExceeded, codeOf(err))
	assert.Equal(t, 0, qe.Quota.Remaining)
	assert.Len(t, mock.Calls(), 1)
}

func TestFoodSearch_UserTakesPrecedenceOverDevice(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(foodsJSON(1))), Config{})
	caller := f.user("pro")
	caller.DeviceID = "dev-1"

	res, err := f.svc.FoodSearch(context.Background(), caller, "oats")
	require.NoError(t, err)
	assert.Equal(t, 60, res.Quota.Limit)
	assert.Equal(t, "pro", res.Quota.Plan)
	assert.Equal(t, 0, f.ledger.Rows("device:dev-1:search"))
	assert.Equal(t, 1, f.ledger.Rows(caller.KeyFor(quota.FeatureSearch)))
}

func TestFoodSearch_ClampsAndCapsResults(t *testing.T) {
	reply := strings.Replace(foodsJSON(12), `"calories":100,"protein":5`, `"calories":5000,"protein":-3`, 1)
	f := newFixture(t, model.NewMock(model.WithReply("Here you go:\n```json\n"+reply+"\n```")), Config{})

	res, err := f.svc.FoodSearch(context.Background(), f.user("free"), "rice")
	require.NoError(t, err)
	require.Len(t, res.Foods, maxSearchResults)
	assert.Equal(t, 900.0, res.Foods[0].Calories)
	assert.Equal(t, 0.0, res.Foods[0].Protein)
	assert.Equal(t, 100.0, res.Foods[1].Calories)
}

func TestFoodSearch_PromptCarriesCleanedQuery(t *testing.T) {
	var seen model.Prompt
	client := model.NewMock(model.WithReplyFunc(func(p model.Prompt) (string, error) {
		seen = p
		return foodsJSON(1), nil
	}))
	f := newFixture(t, client, Config{})

	_, err := f.svc.FoodSearch(context.Background(), f.user("free"), "  green\t\"tea\"   latte ")
	require.NoError(t, err)
	assert.Contains(t, seen.User, `"green tea latte"`)
	assert.True(t, seen.JSON)
}

func TestFoodSearch_BareArrayAccepted(t *testing.T) {
	reply := `[{"name":"Apple","calories":95,"protein":0.5,"carbs":25,"fat":0.3}]`
	f := newFixture(t, model.NewMock(model.WithReply(reply)), Config{})

	res, err := f.svc.FoodSearch(context.Background(), f.user("free"), "apple")
	require.NoError(t, err)
	require.Len(t, res.Foods, 1)
	assert.Equal(t, "Apple", res.Foods[0].Name)
}

func TestFoodSearch_InvalidOutputReleasesUnit(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":        "Sorry, I cannot help with that.",
		"wrong shape":  `{"foods":[{"name":"x"}]}`,
		"empty list":   `{"foods":[]}`,
		"string value": `{"foods":[{"name":"x","calories":"lots","protein":1,"carbs":1,"fat":1}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, model.NewMock(model.WithReply(reply)), Config{})
			caller := f.user("free")

			_, err := f.svc.FoodSearch(context.Background(), caller, "bread")
			assert.Equal(t, apierr.CodeUpstreamInvalidResponse, codeOf(err))
			used, _ := f.ledger.Used(context.Background(), caller.KeyFor(quota.FeatureSearch))
			assert.Zero(t, used)
		})
	}
}

func TestFoodAnalysis_FreePlanRequiresPremium(t *testing.T) {
	mock := model.NewMock(model.WithReply(pastaJSON))
	f := newFixture(t, mock, Config{})
	caller := f.user("free")
	key := f.upload(t, caller)

	_, err := f.svc.FoodAnalysis(context.Background(), caller, key)
	assert.Equal(t, apierr.CodePremiumRequired, codeOf(err))
	assert.Zero(t, f.ledger.Rows(caller.KeyFor(quota.FeatureAnalysis)))
	assert.Empty(t, mock.Calls())
	assert.Equal(t, []string{key}, f.blobs.Removed())
}

func TestFoodAnalysis_UnknownTierIsFree(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(pastaJSON)), Config{})
	caller := f.user("platinum")

	_, err := f.svc.FoodAnalysis(context.Background(), caller, f.upload(t, caller))
	assert.Equal(t, apierr.CodePremiumRequired, codeOf(err))
}

func TestFoodAnalysis_MissingProfile(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	caller := quota.Identity{UserID: uuid.New()}

	_, err := f.svc.FoodAnalysis(context.Background(), caller, f.upload(t, caller))
	assert.Equal(t, apierr.CodeProfileNotFound, codeOf(err))
}

func TestFoodAnalysis_Success(t *testing.T) {
	mock := model.NewMock(model.WithReply(pastaJSON))
	f := newFixture(t, mock, Config{})
	caller := f.user("basic")
	key := f.upload(t, caller)

	res, err := f.svc.FoodAnalysis(context.Background(), caller, key)
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, "Pasta", res.Food.Name)
	assert.Equal(t, 900.0, res.Food.Calories)
	assert.Equal(t, 31.3, res.Food.Protein)
	assert.Equal(t, 0.0, res.Food.Carbs)
	assert.Equal(t, 1.0, res.Confidence)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 200.0, res.Items[0].Fat)
	assert.Equal(t, QuotaInfo{UsedToday: 1, Limit: 3, Remaining: 2, Plan: "basic"}, res.Quota)

	require.Len(t, mock.Calls(), 1)
	assert.Equal(t, []string{"https://blobs.test/" + key}, mock.Calls()[0].ImageURLs)
	assert.Equal(t, []string{key}, f.blobs.Removed())
	_, stillThere := f.blobs.Get(key)
	assert.False(t, stillThere)

	entries := f.usage.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.UsageKindAnalysis, entries[0].Kind)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, caller.UserID, *entries[0].UserID)
	assert.Equal(t, 1, f.plans.Bumped(caller.UserID))
}

func TestFoodAnalysis_UpstreamFailureReleasesAndCleansUp(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithError(model.ErrUnavailable)), Config{})
	caller := f.user("basic")
	key := f.upload(t, caller)

	_, err := f.svc.FoodAnalysis(context.Background(), caller, key)
	assert.Equal(t, apierr.CodeUpstream, codeOf(err))
	assert.ErrorIs(t, err, model.ErrUnavailable)

	used, _ := f.ledger.Used(context.Background(), caller.KeyFor(quota.FeatureAnalysis))
	assert.Zero(t, used)
	assert.Equal(t, []string{key}, f.blobs.Removed())
	f.svc.Wait()
	assert.Empty(t, f.usage.Entries())
}

func TestFoodAnalysis_Timeout(t *testing.T) {
	mock := model.NewMock(model.WithLatency(time.Second), model.WithReply(pastaJSON))
	f := newFixture(t, mock, Config{ModelTimeout: 20 * time.Millisecond})
	caller := f.user("pro")
	key := f.upload(t, caller)

	_, err := f.svc.FoodAnalysis(context.Background(), caller, key)
	assert.Equal(t, apierr.CodeUpstreamTimeout, codeOf(err))
	assert.Equal(t, []string{key}, f.blobs.Removed())
}

func TestFoodAnalysis_QuotaExceededStillCleansUp(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(pastaJSON)), Config{})
	caller := f.user("basic")
	for i := 0; i < 3; i++ {
		_, err := f.ledger.Consume(context.Background(), caller.KeyFor(quota.FeatureAnalysis), 3)
		require.NoError(t, err)
	}
	key := f.upload(t, caller)

	_, err := f.svc.FoodAnalysis(context.Background(), caller, key)
	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, QuotaInfo{UsedToday: 3, Limit: 3, Remaining: 0, Plan: "basic"}, qe.Quota)
	assert.Equal(t, []string{key}, f.blobs.Removed())
}

func TestFoodAnalysis_RejectsForeignOrBadPaths(t *testing.T) {
	mock := model.NewMock(model.WithReply(pastaJSON))
	f := newFixture(t, mock, Config{})
	caller := f.user("pro")
	other := uuid.New().String()

	for _, p := range []string{
		"",
		other + "/meal.jpg",
		caller.UserID.String() + "/../" + other + "/meal.jpg",
		caller.UserID.String() + "/notes.txt",
	} {
		_, err := f.svc.FoodAnalysis(context.Background(), caller, p)
		assert.Equal(t, apierr.CodeValidation, codeOf(err), "path %q", p)
	}
	assert.Empty(t, mock.Calls())
	assert.Empty(t, f.blobs.Removed())
	assert.Zero(t, f.ledger.Rows(caller.KeyFor(quota.FeatureAnalysis)))
}

func TestFoodAnalysis_DeviceCannotAnalyse(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	_, err := f.svc.FoodAnalysis(context.Background(), quota.Identity{DeviceID: "dev"}, "dev/meal.jpg")
	assert.Equal(t, apierr.CodeUnauthorized, codeOf(err))
}

func TestService_NoModelIsMisconfigured(t *testing.T) {
	f := newFixture(t, nil, Config{})
	_, err := f.svc.FoodSearch(context.Background(), f.user("pro"), "eggs")
	assert.Equal(t, apierr.CodeServerMisconfigured, codeOf(err))
}

func TestService_UsageLogFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(foodsJSON(1))), Config{})
	f.usage.err = errors.New("db down")

	_, err := f.svc.FoodSearch(context.Background(), f.user("free"), "tofu")
	require.NoError(t, err)
	f.svc.Wait()
}

func TestInsights_Validation(t *testing.T) {
	mock := model.NewMock()
	f := newFixture(t, mock, Config{})
	caller := f.user("pro")
	neg := -1.0

	cases := map[string]InsightsRequest{
		"bad range":      {Range: "year", Stats: InsightStats{Days: 3}},
		"too many days":  {Range: "week", Stats: InsightStats{Days: 8}},
		"zero days":      {Range: "month", Stats: InsightStats{Days: 0}},
		"negative avg":   {Range: "week", Stats: InsightStats{Days: 7, AvgFat: -2}},
		"negative start": {Range: "week", Stats: InsightStats{Days: 7, WeightStart: &neg}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Insights(context.Background(), caller, req)
			assert.Equal(t, apierr.CodeValidation, codeOf(err))
		})
	}
	assert.Empty(t, mock.Calls())
}

func TestInsights_Success(t *testing.T) {
	reply := `{"summary":" Solid week. ","tips":["a","b","","c","d","e","f"]}`
	mock := model.NewMock(model.WithReply(reply))
	f := newFixture(t, mock, Config{})
	caller := f.user("unlimited")
	start, end := 81.0, 80.2

	res, err := f.svc.Insights(context.Background(), caller, InsightsRequest{
		Range: "month",
		Stats: InsightStats{Days: 30, AvgCalories: 1850, AvgProtein: 120, AvgCarbs: 200, AvgFat: 60,
			WeightStart: &start, WeightEnd: &end, CalorieTarget: 1900},
	})
	require.NoError(t, err)
	assert.Equal(t, "Solid week.", res.Summary)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, res.Tips)
	assert.Equal(t, quota.Unbounded, res.Quota.Limit)
	assert.Equal(t, quota.Unbounded, res.Quota.Remaining)

	prompt := mock.Calls()[0].User
	assert.Contains(t, prompt, "1850 kcal")
	assert.Contains(t, prompt, "81.0 kg to 80.2 kg")
	assert.Contains(t, prompt, "1900 kcal")
	f.svc.Wait()
	require.Len(t, f.usage.Entries(), 1)
	assert.Equal(t, "month", f.usage.Entries()[0].TimeRange)
}

func TestQuotaStatus(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(pastaJSON)), Config{})
	caller := f.user("pro")
	_, err := f.svc.FoodAnalysis(context.Background(), caller, f.upload(t, caller))
	require.NoError(t, err)

	info, err := f.svc.QuotaStatus(context.Background(), caller, quota.FeatureAnalysis)
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{UsedToday: 1, Limit: 8, Remaining: 7, Plan: "pro"}, info)

	info, err = f.svc.QuotaStatus(context.Background(), quota.Identity{DeviceID: "d"}, quota.FeatureAnalysis)
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{Limit: 0, Plan: "anonymous"}, info)
}

func TestQuota_FeaturesAreCountedSeparately(t *testing.T) {
	client := model.NewMock(model.WithReplyFunc(func(p model.Prompt) (string, error) {
		if len(p.ImageURLs) > 0 {
			return pastaJSON, nil
		}
		return foodsJSON(1), nil
	}))
	f := newFixture(t, client, Config{})
	caller := f.user("basic")

	for i := 0; i < 3; i++ {
		_, err := f.svc.FoodSearch(context.Background(), caller, "banana")
		require.NoError(t, err)
	}

	res, err := f.svc.FoodAnalysis(context.Background(), caller, f.upload(t, caller))
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{UsedToday: 1, Limit: 3, Remaining: 2, Plan: "basic"}, res.Quota)

	info, err := f.svc.QuotaStatus(context.Background(), caller, quota.FeatureSearch)
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{UsedToday: 3, Limit: 60, Remaining: 57, Plan: "basic"}, info)

	info, err = f.svc.QuotaStatus(context.Background(), caller, quota.FeatureInsights)
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{UsedToday: 0, Limit: 3, Remaining: 3, Plan: "basic"}, info)
	f.svc.Wait()
}

func TestUploadMealImage(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	id := uuid.New()

	key, url, err := f.svc.UploadMealImage(context.Background(), id, strings.NewReader("png"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, id.String()+"/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.Equal(t, "https://blobs.test/"+key, url)

	_, _, err = f.svc.UploadMealImage(context.Background(), id, strings.NewReader("gif"), "image/gif")
	assert.Equal(t, apierr.CodeValidation, codeOf(err))
}
