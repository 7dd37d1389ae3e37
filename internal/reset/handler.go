package reset

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/middleware"
)

// Handler lets an external scheduler trigger the sweep with a shared secret.
type Handler struct {
	sweeper *Sweeper
	secret  string
	log     *slog.Logger
}

func NewHandler(s *Sweeper, secret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sweeper: s, secret: secret, log: log}
}

// POST /internal/jobs/daily-reset[?day=YYYY-MM-DD]
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		apierr.Write(w, h.log, apierr.Misconfigured("CRON_SECRET is not set"))
		return
	}
	got := middleware.BearerToken(r)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		apierr.Write(w, h.log, apierr.Unauthorized("invalid cron secret"))
		return
	}

	day, err := ParseDay(r.URL.Query().Get("day"))
	if err != nil {
		apierr.Write(w, h.log, apierr.Validation(err.Error()))
		return
	}
	sum, err := h.sweeper.Run(r.Context(), day)
	if err != nil {
		apierr.Write(w, h.log, apierr.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "daily reset %s: %s\n", day.Format(time.DateOnly), sum)
}
