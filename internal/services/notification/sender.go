package notification

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
)

// Transport исходящий канал в Telegram.
type Transport interface {
	Send(ctx context.Context, chatID int64, reply bot.Reply) error
}

// DirectSender отправляет уведомление сразу в Telegram.
type DirectSender struct {
	transport Transport
}

// NewDirectSender создает отправителя поверх транспорта бота.
func NewDirectSender(t Transport) *DirectSender {
	return &DirectSender{transport: t}
}

// Send отправляет уведомление в чат пользователя.
func (d *DirectSender) Send(ctx context.Context, n Notification) error {
	const op = "notification.DirectSender.Send"
	if err := d.transport.Send(ctx, n.TelegramID, n.Reply()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикация в брокер по ключу маршрутизации.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// QueueSender публикует уведомление в обменник notifications, откуда его
// забирает notification-sender.
type QueueSender struct {
	pub Publisher
}

// NewQueueSender создает отправителя поверх издателя RabbitMQ.
func NewQueueSender(pub Publisher) *QueueSender {
	return &QueueSender{pub: pub}
}

// Send публикует уведомление с ключом маршрутизации по его виду.
func (q *QueueSender) Send(_ context.Context, n Notification) error {
	const op = "notification.QueueSender.Send"
	if err := q.pub.Publish(string(n.Kind), n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
