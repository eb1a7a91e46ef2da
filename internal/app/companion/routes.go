// Package companion собирает бота: хранилища, сервисы, конвейер Telegram,
// планировщик уведомлений и HTTP-сервер вебхуков и администрирования.
package companion

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/admin/notifications"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/admin/ratelimit"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/admin/users"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/health"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/payment/paymentwebhook"
	"github.com/magabrotheeeer/companion-bot/internal/http/middlewarectx"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
)

// Handlers зависимости HTTP-маршрутов.
type Handlers struct {
	Checks        map[string]health.Pinger
	Webhooks      paymentwebhook.Service
	Limits        ratelimit.Service
	Notifications notifications.Service
	Users         users.Repository
	Entitlements  users.Entitlements
	Tokens        middlewarectx.TokenParser
	Clock         clock.Clock
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg config.HTTPServer, webhookSecret string, h Handlers) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
	)

	webhook := paymentwebhook.New(logger, h.Webhooks, webhookSecret)

	r.Get("/health", health.New(logger, h.Checks).ServeHTTP)
	// Адрес, который указан в настройках магазина YooKassa
	r.With(middlewarectx.RateLimitMiddleware(logger, cfg.RequestsPerSec, cfg.Burst)).
		Post("/yookassa_webhook", webhook.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RequestsPerSec, cfg.Burst))

		// Webhook endpoint (без аутентификации)
		r.Post("/payments/webhook", webhook.ServeHTTP)

		// Группа с JWT аутентификацией
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(h.Tokens, logger))

			limits := ratelimit.New(logger, h.Limits)
			r.Get("/ratelimit", limits.Stats)
			r.Post("/ratelimit/{telegram_id}/reset", limits.Reset)

			sweeps := notifications.New(logger, h.Notifications, h.Clock)
			r.Get("/notifications", sweeps.Info)
			r.Post("/notifications/sweep", sweeps.Sweep)

			r.Get("/users/{telegram_id}", users.New(logger, h.Users, h.Entitlements).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
