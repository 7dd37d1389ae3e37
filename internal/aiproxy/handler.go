package aiproxy

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/middleware"
	"github.com/kalori/backend/internal/quota"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type SearchRequest struct {
	Query string `json:"query"`
}

type AnalysisRequest struct {
	ImagePath string `json:"image_path"`
}

type UploadResponse struct {
	ImagePath string `json:"image_path"`
	URL       string `json:"url"`
}

func callerFrom(r *http.Request) quota.Identity {
	return quota.Identity{
		UserID:   middleware.UserFromCtx(r.Context()),
		DeviceID: middleware.DeviceFromCtx(r.Context()),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		apierr.WriteWith(w, h.log, err, qe.Quota)
		return
	}
	apierr.Write(w, h.log, err)
}

// POST /api/v1/ai/food-search
func (h *Handler) FoodSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.FoodSearch(r.Context(), callerFrom(r), req.Query)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/ai/food-analysis
func (h *Handler) FoodAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.FoodAnalysis(r.Context(), callerFrom(r), req.ImagePath)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/v1/ai/insights
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	var req InsightsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Insights(r.Context(), callerFrom(r), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/v1/ai/quota?feature=search
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	f, ok := quota.ParseFeature(r.URL.Query().Get("feature"))
	if !ok {
		apierr.Write(w, h.log, apierr.Validation("feature must be one of search, analysis, insights"))
		return
	}
	info, err := h.svc.QuotaStatus(r.Context(), callerFrom(r), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// POST /api/v1/meal-images (multipart field "image")
func (h *Handler) UploadMealImage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserFromCtx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+64<<10)
	file, header, err := r.FormFile("image")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			apierr.Write(w, h.log, apierr.Validation("image must be at most 8 MiB"))
			return
		}
		apierr.Write(w, h.log, apierr.Validation(`multipart field "image" is required`))
		return
	}
	defer file.Close()
	if header.Size > maxImageBytes {
		apierr.Write(w, h.log, apierr.Validation("image must be at most 8 MiB"))
		return
	}

	br := bufio.NewReaderSize(file, 512)
	head, _ := br.Peek(512)
	contentType := http.DetectContentType(head)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	key, url, err := h.svc.UploadMealImage(r.Context(), userID, br, contentType)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{ImagePath: key, URL: url})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
