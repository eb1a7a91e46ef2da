// Package rabbitmq содержит подключение к брокеру, объявление обменника
// уведомлений, публикацию и потребление сообщений.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
)

// ExchangeName direct-обменник уведомлений о подписках.
const ExchangeName = "notifications"

const (
	heartbeat     = 10 * time.Second
	maxRetryDelay = 30 * time.Second
)

// Connect подключается к брокеру не более чем за cfg.RabbitMQMaxRetries
// попыток. Пауза между попытками удваивается, начиная с cfg.RabbitMQRetryDelay.
func Connect(ctx context.Context, cfg config.RabbitMQ, log *slog.Logger) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	retries := max(cfg.RabbitMQMaxRetries, 1)
	delay := cfg.RabbitMQRetryDelay

	var err error
	for attempt := 1; ; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.DialConfig(cfg.RabbitMQURL, amqp.Config{Heartbeat: heartbeat, Locale: "en_US"})
		if err == nil {
			return conn, nil
		}
		if attempt == retries {
			break
		}
		log.Warn("rabbitmq is not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			sl.Err(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}

	return nil, fmt.Errorf("%s: %d attempts: %w", op, retries, err)
}

// SetupChannel открывает канал с prefetch, объявляет обменник и привязывает
// к нему очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: qos: %w", op, err)
	}
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: exchange %s: %w", op, ExchangeName, err)
	}
	for _, q := range queues {
		if err := bindQueue(ch, q); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return ch, nil
}

// bindQueue объявляет долговечную очередь и привязывает ее к обменнику
// уведомлений по ключу маршрутизации.
func bindQueue(ch *amqp.Channel, q QueueConfig) error {
	if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue %s: %w", q.QueueName, err)
	}
	if err := ch.QueueBind(q.QueueName, q.RoutingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", q.QueueName, q.RoutingKey, err)
	}
	return nil
}
