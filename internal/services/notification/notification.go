// Package notification рассылает предупреждения о скором окончании подписки
// и уведомления об ее истечении.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/rabbitmq"
)

// Kind вид уведомления. Значение совпадает с ключом маршрутизации в RabbitMQ.
type Kind string

const (
	KindExpiry  Kind = rabbitmq.RoutingKeyExpiry
	KindExpired Kind = rabbitmq.RoutingKeyExpired
)

// Notification готовое к отправке уведомление.
type Notification struct {
	Kind       Kind                      `json:"kind"`
	UserID     int64                     `json:"user_id"`
	TelegramID int64                     `json:"telegram_id"`
	Status     models.SubscriptionStatus `json:"status"`
	EndTime    time.Time                 `json:"end_time"`
	Text       string                    `json:"text"`
}

// Reply сообщение Telegram с клавиатурой подписки.
func (n Notification) Reply() bot.Reply {
	return bot.Reply{
		Text:     n.Text,
		Keyboard: bot.SubscriptionKeyboard(n.Kind == KindExpiry),
		Markdown: true,
	}
}

// Sender доставляет уведомление пользователю.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

func statusText(status models.SubscriptionStatus) string {
	if status == models.StatusTrial {
		return "Ваш пробный период"
	}
	return "Ваша подписка"
}

// TimeLeftText сколько осталось до окончания: часы, если меньше суток,
// "завтра" для одного дня, иначе число дней.
func TimeLeftText(end, now time.Time) string {
	left := end.Sub(now)
	days := int(left / (24 * time.Hour))
	switch {
	case days <= 0:
		hours := int((left + time.Hour - 1) / time.Hour)
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("менее чем через %d %s", hours, bot.Pluralize(hours, "час", "часа", "часов"))
	case days == 1:
		return "завтра"
	default:
		return fmt.Sprintf("через %d %s", days, bot.Pluralize(days, "день", "дня", "дней"))
	}
}

// ExpiryWarning предупреждение о скором окончании подписки.
func ExpiryWarning(c models.ExpiryCandidate, now time.Time) Notification {
	sub := c.Subscription
	text := "⚠️ **Внимание!**\n\n" +
		fmt.Sprintf("%s истекает %s\n", statusText(sub.Status), TimeLeftText(sub.EndTime, now)) +
		fmt.Sprintf("📅 Дата окончания: %s\n\n", bot.FormatDateTime(sub.EndTime)) +
		"💡 Чтобы продолжить пользоваться всеми функциями бота:\n" +
		"• Оформите новую подписку\n" +
		"• Выберите подходящий план\n" +
		"• Получите скидку при покупке длительных планов\n\n" +
		"💎 Не упустите возможность продолжить общение с вашей виртуальной девушкой!"
	return Notification{
		Kind:       KindExpiry,
		UserID:     c.User.ID,
		TelegramID: c.User.TelegramID,
		Status:     sub.Status,
		EndTime:    sub.EndTime,
		Text:       text,
	}
}

// Expired уведомление об истечении подписки.
func Expired(c models.ExpiryCandidate) Notification {
	sub := c.Subscription
	title := "Пробный период истек"
	if sub.Status != models.StatusTrial {
		title = "Подписка истекла"
	}
	text := "❌ **" + title + "**\n\n" +
		fmt.Sprintf("📅 Дата окончания: %s\n\n", bot.FormatDateTime(sub.EndTime)) +
		"🔒 Доступ к функциям бота ограничен:\n" +
		"• Общение с виртуальной девушкой недоступно\n" +
		"• Создание профилей заблокировано\n" +
		"• История разговоров сохранена\n\n" +
		"💎 **Восстановите доступ:**\n" +
		"• Выберите подходящий план подписки\n" +
		"• Получите скидку до 33% на длительные планы\n" +
		"• Мгновенная активация после оплаты\n\n" +
		"🎁 Ваши данные и история сохранены!"
	return Notification{
		Kind:       KindExpired,
		UserID:     c.User.ID,
		TelegramID: c.User.TelegramID,
		Status:     sub.Status,
		EndTime:    sub.EndTime,
		Text:       text,
	}
}
