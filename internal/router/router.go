package router

import (
	"log/slog"
	"net/http"

	"github.com/kalori/backend/internal/aiproxy"
	"github.com/kalori/backend/internal/apierr"
	"github.com/kalori/backend/internal/auth"
	"github.com/kalori/backend/internal/middleware"
	"github.com/kalori/backend/internal/profile"
	"github.com/kalori/backend/internal/reset"
)

// Deps are the handlers and collaborators the router mounts.
type Deps struct {
	Auth    *auth.Handler
	AI      *aiproxy.Handler
	Profile *profile.Handler
	Reset   *reset.Handler
	Tokens  middleware.TokenValidator
	Health  http.HandlerFunc
	Metrics http.Handler
	Log     *slog.Logger
}

// New returns an http.Handler that serves the API under /api/v1.
func New(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	requireUser := middleware.RequireUser(d.Tokens, log)
	userOrDevice := middleware.UserOrDevice(d.Tokens, log)

	route := func(path string, h http.Handler) {
		mux.Handle(path, middleware.Instrument(path, h))
	}

	base := "/api/v1"
	route(base+"/auth/register", methodPOST(log, d.Auth.Register))
	route(base+"/auth/login", methodPOST(log, d.Auth.Login))

	route(base+"/ai/food-search", methodPOST(log, userOrDevice(http.HandlerFunc(d.AI.FoodSearch)).ServeHTTP))
	route(base+"/ai/food-analysis", methodPOST(log, requireUser(http.HandlerFunc(d.AI.FoodAnalysis)).ServeHTTP))
	route(base+"/ai/insights", methodPOST(log, requireUser(http.HandlerFunc(d.AI.Insights)).ServeHTTP))
	route(base+"/ai/quota", methodGET(log, userOrDevice(http.HandlerFunc(d.AI.Quota)).ServeHTTP))
	route(base+"/meal-images", methodPOST(log, requireUser(http.HandlerFunc(d.AI.UploadMealImage)).ServeHTTP))

	route(base+"/profile", requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			d.Profile.Get(w, r)
		case http.MethodPut:
			d.Profile.Update(w, r)
		default:
			methodNotAllowed(w, r, log)
		}
	})))
	route(base+"/meals", methodPOST(log, requireUser(http.HandlerFunc(d.Profile.LogMeal)).ServeHTTP))
	route(base+"/stats/history", methodGET(log, requireUser(http.HandlerFunc(d.Profile.History)).ServeHTTP))

	route("/internal/jobs/daily-reset", methodPOST(log, d.Reset.Trigger))

	if d.Health != nil {
		mux.HandleFunc("/healthz", methodGET(log, d.Health))
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apierr.Write(w, log, apierr.New(http.StatusNotFound, apierr.CodeNotFound, "no such route", nil))
	})
	return mux
}

// methodNotAllowed answers a stray OPTIONS with 204 and anything else with 405.
func methodNotAllowed(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	apierr.Write(w, log, apierr.New(http.StatusMethodNotAllowed, apierr.CodeMethodNotAllowed, "method not allowed", nil))
}

func methodGET(log *slog.Logger, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, log)
			return
		}
		h(w, r)
	}
}

func methodPOST(log *slog.Logger, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, log)
			return
		}
		h(w, r)
	}
}
