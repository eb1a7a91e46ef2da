package dialogue

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
)

// Sender исходящие сообщения.
type Sender interface {
	Send(ctx context.Context, chatID int64, reply bot.Reply) error
}

// PaymentNotifier доставляет сообщение об оплате и выводит пользователя из
// ожидания платежа. В личном чате chat_id совпадает с telegram_id.
type PaymentNotifier struct {
	states *Store
	out    Sender
	log    *slog.Logger
}

// NewPaymentNotifier создает уведомитель об оплате.
func NewPaymentNotifier(states *Store, out Sender, log *slog.Logger) *PaymentNotifier {
	return &PaymentNotifier{states: states, out: out, log: log}
}

// Send сбрасывает ожидание оплаты и отправляет сообщение. Ошибка сброса
// состояния не мешает доставке.
func (n *PaymentNotifier) Send(ctx context.Context, chatID int64, reply bot.Reply) error {
	if err := n.states.LeavePayment(ctx, chatID); err != nil {
		n.log.Warn("failed to reset payment state", sl.TelegramID(chatID), sl.Err(err))
	}
	return n.out.Send(ctx, chatID, reply)
}
