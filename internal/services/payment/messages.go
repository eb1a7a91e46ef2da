package payment

import (
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// OfferText сообщение со ссылкой на оплату тарифа.
func OfferText(plan *models.Plan) string {
	return fmt.Sprintf("💳 **Оплата подписки**\n\n"+
		"💸 План: %s\n"+
		"💰 Сумма: %d₽\n"+
		"📅 Период: %d дней\n\n"+
		"Нажмите кнопку 'Оплатить' для перехода к оплате.\n"+
		"После успешной оплаты подписка будет активирована автоматически.",
		plan.Name, plan.Price, plan.DurationDays)
}

// ActivationReply сообщение об успешной оплате.
func ActivationReply(plan *models.Plan, sub *models.Subscription) bot.Reply {
	text := fmt.Sprintf("🎉 **Оплата прошла успешно!**\n\n"+
		"✅ Подписка '%s' активирована\n"+
		"📅 Действует до: %s\n"+
		"💬 Все функции бота доступны\n\n"+
		"Спасибо за покупку! 💕\n\n"+
		"Теперь вы можете:\n"+
		"• Создать профиль девушки\n"+
		"• Начать общение\n"+
		"• Использовать все возможности бота",
		plan.Name, bot.FormatDateTime(sub.EndTime))
	return bot.Reply{Text: text, Markdown: true}
}
