package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-bot/internal/bot/dialogue"
	"github.com/magabrotheeeer/companion-bot/internal/bot/pipeline"
	"github.com/magabrotheeeer/companion-bot/internal/cache"
	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/http/handlers/health"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/jwt"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
	"github.com/magabrotheeeer/companion-bot/internal/migrations"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/paymentprovider"
	"github.com/magabrotheeeer/companion-bot/internal/rabbitmq"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
	"github.com/magabrotheeeer/companion-bot/internal/services/conversation"
	"github.com/magabrotheeeer/companion-bot/internal/services/entitlement"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
	"github.com/magabrotheeeer/companion-bot/internal/telegram"
)

// App процесс бота.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	cache     *cache.Cache
	telegram  *telegram.Client
	pipeline  *pipeline.Pipeline
	scheduler *notification.Scheduler
	amqp      *amqp.Connection
}

// New подключает хранилища и собирает все компоненты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "companion.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = repository.CheckDatabaseReady(db); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	seeded, err := db.SeedPlans(ctx, models.DefaultPlans())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if seeded > 0 {
		logger.Info("subscription plans seeded", slog.Int("count", seeded))
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", slog.String("timezone", cfg.Timezone), sl.Err(err))
		loc = time.UTC
	}

	clk := clock.Real{}

	tg, err := telegram.New(cfg.Telegram, logger)
	if err != nil {
		return nil, err
	}
	gen := llm.New(cfg.Gemini, logger)

	entitlements := entitlement.New(db, clk, cfg.Subscription, logger)
	personas := persona.New(db, gen, logger)
	conversations := conversation.New(db, gen, logger)
	limiter := ratelimiter.New(cacheRedis.Db, cfg.RateLimit, clk, logger)

	states := dialogue.NewStore(cacheRedis)
	payments := payment.New(db, entitlements, paymentprovider.NewClient(cfg.YooKassa),
		dialogue.NewPaymentNotifier(states, tg, logger), clk, logger)

	var (
		sender   notification.Sender = notification.NewDirectSender(tg)
		amqpConn *amqp.Connection
	)
	if cfg.Notifications.Transport == config.TransportRabbitMQ {
		amqpConn, err = rabbitmq.Connect(ctx, cfg.RabbitMQ, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.NotificationQueues())
		if err != nil {
			_ = amqpConn.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sender = notification.NewQueueSender(rabbitmq.NewPublisher(ch, clk))
	}
	scheduler := notification.New(db, sender, clk, cfg.Notifications, logger)

	machine := dialogue.New(dialogue.Deps{
		Entitlements:  entitlements,
		Personas:      personas,
		Conversations: conversations,
		Payments:      payments,
		Notifications: scheduler,
		Limits:        limiter,
		Typer:         tg,
	}, states, clk, dialogue.Config{
		AdminUsername: cfg.AdminUsername,
		TrialDays:     cfg.TrialDays,
		Location:      loc,
	}, logger)

	p := pipeline.New(machine, tg, cfg.Telegram.Workers, logger,
		pipeline.NewIdentityGate(db),
		pipeline.NewEntitlementGate(entitlements),
		pipeline.NewRateLimitGate(limiter, logger),
	)

	if err = prometheus.Register(metrics.NewStatsCollector(db, logger)); err != nil {
		logger.Warn("failed to register stats collector", sl.Err(err))
	}

	if cfg.JWTSecretKey == "" {
		logger.Warn("jwt secret is empty, admin api rejects all requests")
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, cfg.WebhookSecret, Handlers{
		Checks: map[string]health.Pinger{
			"postgres": db,
			"redis":    cacheRedis,
		},
		Webhooks:      payments,
		Limits:        limiter,
		Notifications: scheduler,
		Users:         db,
		Entitlements:  entitlements,
		Tokens:        jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL, clk),
		Clock:         clk,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		cache:     cacheRedis,
		telegram:  tg,
		pipeline:  p,
		scheduler: scheduler,
		amqp:      amqpConn,
	}, nil
}

// Run обслуживает Telegram, планировщик и HTTP до отмены ctx, затем
// дожидается обработки начатых событий и закрывает соединения.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.pipeline.Run(ctx, a.telegram.Updates(ctx))
	}()
	go func() {
		defer wg.Done()
		a.scheduler.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		cancel()
	case <-ctx.Done():
		timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelTimeout()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}

	wg.Wait()
	a.close()
	return runErr
}

func (a *App) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", sl.Err(err))
	}
}
