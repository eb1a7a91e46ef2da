// Package metrics метрики Prometheus бота. Все метрики регистрируются
// в реестре по умолчанию и отдаются через /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions исход прохождения событий через конвейер по воротам.
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_admissions_total",
			Help: "Inbound events by the gate that decided them and the outcome",
		},
		[]string{"gate", "outcome"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_rate_limit_decisions_total",
			Help: "Rate limiter decisions",
		},
		[]string{"decision"}, // allowed, warned, banned, fail_open
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_notifications_total",
			Help: "Subscription notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "companion_notification_sweep_duration_seconds",
			Help:    "Duration of one notification sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_payment_webhook_events_total",
			Help: "Payment webhook deliveries by event and result",
		},
		[]string{"event", "result"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "companion_generation_duration_seconds",
			Help:    "Latency of generative backend calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"call", "result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "companion_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "path", "code"},
	)
)

// ObserveGeneration записывает длительность вызова генеративной модели.
func ObserveGeneration(call string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GenerationDuration.WithLabelValues(call, result).Observe(time.Since(start).Seconds())
}

// Middleware считает HTTP-запросы по шаблону маршрута chi.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}
