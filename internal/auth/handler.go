package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/models"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid JSON"))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid email"))
		return
	}
	if len(req.Password) < 8 {
		apierr.Write(w, h.log, apierr.Validation("password must be at least 8 characters"))
		return
	}
	u, err := h.svc.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			apierr.Write(w, h.log, apierr.New(http.StatusConflict, apierr.CodeConflict, "email already registered", err))
			return
		}
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, userToResponse(u))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, h.log, apierr.Validation("invalid JSON"))
		return
	}
	if req.Email == "" || req.Password == "" {
		apierr.Write(w, h.log, apierr.Validation("missing email or password"))
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			apierr.Write(w, h.log, apierr.Unauthorized("invalid credentials"))
			return
		}
		apierr.Write(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
