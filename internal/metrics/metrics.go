package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 1) Request volume by route and status
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kalori_requests_total",
		Help: "Total number of API requests handled.",
	}, []string{"route", "status"})

	// 2) Concurrency (in flight)
	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kalori_active_requests",
		Help: "Current number of in-flight requests.",
	})

	// 3) Request latency
	RequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kalori_request_duration_seconds",
		Help:    "End-to-end handler duration.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"route"})

	// 4) Model call latency
	ModelDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kalori_model_duration_seconds",
		Help:    "Duration of upstream model calls.",
		Buckets: []float64{0.5, 1, 2, 4, 8, 12, 16, 20, 25},
	}, []string{"feature", "outcome"})

	// 5) Quota decisions
	QuotaDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kalori_quota_decisions_total",
		Help: "Quota checks by feature and result (allowed, exceeded, premium_required).",
	}, []string{"feature", "result"})

	// 6) Daily reset outcomes
	ResetProfilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kalori_daily_reset_profiles_total",
		Help: "Profiles visited by the daily reset, by outcome (processed, skipped, failed).",
	}, []string{"outcome"})

	// 7) Best-effort writes that were dropped
	UsageLogFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kalori_usage_log_failures_total",
		Help: "Usage log or counter writes that failed after a successful response.",
	})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		ActiveRequests,
		RequestDurationSeconds,
		ModelDurationSeconds,
		QuotaDecisionsTotal,
		ResetProfilesTotal,
		UsageLogFailuresTotal,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
