package pipeline

import (
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
)

// ErrorReply общий ответ о внутренней ошибке.
func ErrorReply() bot.Reply {
	return bot.Reply{Text: "❌ Произошла ошибка. Попробуйте позже.", Alert: true}
}

// SubscriptionRequiredReply отказ в доступе без подписки.
func SubscriptionRequiredReply(callback bool) bot.Reply {
	if callback {
		return bot.Reply{Text: "❌ Для использования этой функции необходима активная подписка", Alert: true}
	}
	return bot.Reply{
		Text: "❌ Для использования этой функции необходима активная подписка.\n\n" +
			"Используйте команду /subscription для оформления подписки.",
		Keyboard: bot.SubscriptionKeyboard(false),
	}
}

// BannedReply сообщение о временной блокировке.
func BannedReply(seconds int, callback bool) bot.Reply {
	if callback {
		return bot.Reply{Text: fmt.Sprintf("🚫 Слишком много действий! Попробуйте через %d сек.", seconds), Alert: true}
	}
	return bot.Reply{
		Text: fmt.Sprintf("🚫 **Слишком много сообщений!**\n\n"+
			"Вы временно ограничены в отправке сообщений.\n"+
			"⏰ Попробуйте снова через %d сек.", seconds),
		Markdown: true,
	}
}

// WarningReply предупреждение о приближении к лимиту. Для callback это
// обычное сообщение: ответ на callback остается за обработчиком.
func WarningReply(remaining int, callback bool) bot.Reply {
	if callback {
		return bot.Reply{Text: fmt.Sprintf("⚠️ Внимание! Осталось действий: %d", remaining)}
	}
	return bot.Reply{
		Text: fmt.Sprintf("⚠️ **Внимание!**\n\n"+
			"Вы отправляете сообщения слишком быстро.\n"+
			"Осталось сообщений: %d\n"+
			"При превышении лимита вы будете временно ограничены.", remaining),
		Markdown: true,
	}
}
