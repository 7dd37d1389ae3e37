package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kalori/backend/internal/apierr"
)

type contextKey string

const (
	ctxUserKey   contextKey = "user_id"
	ctxDeviceKey contextKey = "device_id"
)

// DeviceHeader identifies an anonymous install.
const DeviceHeader = "X-Device-ID"

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// user id in the request context.
func RequireUser(v TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, log, false)
}

// UserOrDevice accepts a valid bearer token or, when no Authorization header
// is present, an X-Device-ID header. A present but invalid token is rejected
// rather than downgraded to the device.
func UserOrDevice(v TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return authenticate(v, log, true)
}

func authenticate(v TokenValidator, log *slog.Logger, allowDevice bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" && allowDevice {
				device := strings.TrimSpace(r.Header.Get(DeviceHeader))
				if device == "" || len(device) > 128 {
					apierr.Write(w, log, apierr.Unauthorized("missing credentials"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithDevice(r.Context(), device)))
				return
			}

			raw := BearerToken(r)
			if raw == "" {
				apierr.Write(w, log, apierr.Unauthorized("missing or malformed Authorization header"))
				return
			}
			userID, err := v.ValidateToken(r.Context(), raw)
			if err != nil || userID == uuid.Nil {
				apierr.Write(w, log, apierr.Unauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

// UserFromCtx returns the authenticated user id or uuid.Nil.
func UserFromCtx(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxUserKey).(uuid.UUID)
	return id
}

// WithUser returns a context carrying the given user id.
func WithUser(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserKey, id)
}

// DeviceFromCtx returns the anonymous device id or "".
func DeviceFromCtx(ctx context.Context) string {
	d, _ := ctx.Value(ctxDeviceKey).(string)
	return d
}

// WithDevice returns a context carrying the given device id.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ctxDeviceKey, device)
}

// BearerToken returns the credential of an "Authorization: Bearer" header,
// or "" when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
