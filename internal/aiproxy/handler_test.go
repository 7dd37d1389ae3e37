package aiproxy

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/middleware"
	"github.com/kalori/backend/internal/model"
	"github.com/kalori/backend/internal/quota"
)

func serve(h http.HandlerFunc, caller quota.Identity, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := req.Context()
	if caller.Authenticated() {
		ctx = middleware.WithUser(ctx, caller.UserID)
	}
	if caller.DeviceID != "" {
		ctx = middleware.WithDevice(ctx, caller.DeviceID)
	}
	rec := httptest.NewRecorder()
	h(rec, req.WithContext(ctx))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHandler_FoodSearch(t *testing.T) {
	f := newFixture(t, model.NewMock(model.WithReply(foodsJSON(1))), Config{})
	h := NewHandler(f.svc, nil)
	caller := quota.Identity{DeviceID: "dev-9"}

	rec := serve(h.FoodSearch, caller, http.MethodPost, "/api/v1/ai/food-search", `{"query":"banana"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["foods"], 1)
	assert.Equal(t, map[string]any{"usedToday": 1.0, "limit": 1.0, "remaining": 0.0, "plan": "anonymous"}, body["quota"])

	rec = serve(h.FoodSearch, caller, http.MethodPost, "/api/v1/ai/food-search", `{"query":"banana"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, apierr.CodeQuotaExceeded, body["error"])
	assert.Equal(t, 0.0, body["quota"].(map[string]any)["remaining"])
}

func TestHandler_BadJSON(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	h := NewHandler(f.svc, nil)

	rec := serve(h.Insights, f.user("pro"), http.MethodPost, "/api/v1/ai/insights", `{"range":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeValidation, decodeBody(t, rec)["error"])
}

func TestHandler_StatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		client model.Client
		tier   string
		status int
		code   string
	}{
		{"premium required", model.NewMock(), "free", http.StatusForbidden, apierr.CodePremiumRequired},
		{"upstream error", model.NewMock(model.WithError(model.ErrRateLimited)), "pro", http.StatusBadGateway, apierr.CodeUpstream},
		{"invalid output", model.NewMock(model.WithReply("nope")), "pro", http.StatusBadGateway, apierr.CodeUpstreamInvalidResponse},
		{"misconfigured", nil, "pro", http.StatusInternalServerError, apierr.CodeServerMisconfigured},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.client, Config{})
			h := NewHandler(f.svc, nil)
			caller := f.user(tc.tier)
			key := f.upload(t, caller)

			rec := serve(h.FoodAnalysis, caller, http.MethodPost, "/api/v1/ai/food-analysis", `{"image_path":"`+key+`"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestHandler_Quota(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	h := NewHandler(f.svc, nil)
	caller := f.user("basic")

	rec := serve(h.Quota, caller, http.MethodGet, "/api/v1/ai/quota?feature=analysis", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, decodeBody(t, rec)["limit"])

	rec = serve(h.Quota, caller, http.MethodGet, "/api/v1/ai/quota?feature=teleport", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UploadMealImage(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	h := NewHandler(f.svc, nil)
	caller := f.user("basic")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "lunch.png")
	require.NoError(t, err)
	_, _ = part.Write(png)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/meal-images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(middleware.WithUser(req.Context(), caller.UserID))
	rec := httptest.NewRecorder()
	h.UploadMealImage(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, strings.HasPrefix(out.ImagePath, caller.UserID.String()+"/"))
	assert.True(t, strings.HasSuffix(out.ImagePath, ".png"))
	stored, ok := f.blobs.Get(out.ImagePath)
	require.True(t, ok)
	assert.Equal(t, png, stored)
}

func TestHandler_UploadRejectsNonImage(t *testing.T) {
	f := newFixture(t, model.NewMock(), Config{})
	h := NewHandler(f.svc, nil)
	caller := f.user("basic")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "notes.txt")
	_, _ = part.Write([]byte("just some text"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/meal-images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(middleware.WithUser(req.Context(), caller.UserID))
	rec := httptest.NewRecorder()
	h.UploadMealImage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.blobs.Keys())
}
