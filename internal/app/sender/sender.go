// Package sender процесс notification-sender: читает очереди уведомлений
// RabbitMQ и доставляет сообщения в Telegram.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/rabbitmq"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
	"github.com/magabrotheeeer/companion-bot/internal/telegram"
)

// App процесс доставки уведомлений.
type App struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queues   []rabbitmq.QueueConfig
	delivery *notification.Delivery
	logger   *slog.Logger
}

// New подключается к RabbitMQ и Telegram.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to rabbitmq")

	queues := rabbitmq.NotificationQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	tg, err := telegram.New(cfg.Telegram, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &App{
		conn:     conn,
		ch:       ch,
		queues:   queues,
		delivery: notification.NewDelivery(tg, cfg.SendPerSecond, logger),
		logger:   logger,
	}, nil
}

// Run потребляет все очереди уведомлений до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	handle := func(body []byte) error {
		return a.delivery.Handle(ctx, body)
	}

	var consumers []<-chan struct{}
	for _, q := range a.queues {
		done, err := rabbitmq.ConsumerMessage(ctx, a.ch, q.QueueName, handle, a.logger)
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			a.close()
			return err
		}
		a.logger.Info("consuming queue", slog.String("queue", q.QueueName))
		consumers = append(consumers, done)
	}

	<-ctx.Done()
	a.logger.Info("sender shutting down gracefully")
	for _, done := range consumers {
		<-done
	}
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
}
