package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
)

// Delivery отправляет уведомления из очереди в Telegram не чаще perSecond
// сообщений в секунду.
type Delivery struct {
	transport Transport
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewDelivery создает доставщика уведомлений.
func NewDelivery(t Transport, perSecond float64, log *slog.Logger) *Delivery {
	return &Delivery{
		transport: t,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		log:       log,
	}
}

// Handle обрабатывает одно сообщение очереди. Ошибка возвращается только
// тогда, когда повторная доставка имеет смысл. Битые сообщения и чаты,
// недоступные боту, отбрасываются.
func (d *Delivery) Handle(ctx context.Context, body []byte) error {
	const op = "notification.Delivery.Handle"

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		d.log.Warn("dropping undecodable notification", sl.Err(err))
		return nil
	}
	if n.TelegramID <= 0 || n.Text == "" {
		d.log.Warn("dropping incomplete notification", slog.String("kind", string(n.Kind)), sl.TelegramID(n.TelegramID))
		return nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := d.transport.Send(ctx, n.TelegramID, n.Reply())
	switch {
	case err == nil:
		metrics.NotificationsSent.WithLabelValues(string(n.Kind), "delivered").Inc()
		return nil
	case errors.Is(err, bot.ErrChatUnavailable):
		metrics.NotificationsSent.WithLabelValues(string(n.Kind), "undeliverable").Inc()
		d.log.Info("chat unavailable, notification dropped", sl.TelegramID(n.TelegramID))
		return nil
	default:
		metrics.NotificationsSent.WithLabelValues(string(n.Kind), "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
}
