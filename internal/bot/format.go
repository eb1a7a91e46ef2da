package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const (
	dateLayout     = "02.01.2006"
	dateTimeLayout = "02.01.2006 15:04"
)

// FormatDateTime дата и время в формате, привычном пользователю.
func FormatDateTime(t time.Time) string {
	return t.Format(dateTimeLayout)
}

// FormatSubscriptionInfo текст экрана подписки.
func FormatSubscriptionInfo(info models.SubscriptionInfo) string {
	if !info.HasSubscription {
		return "❌ У вас нет активной подписки\n\n" +
			"💎 Оформите подписку для доступа ко всем функциям бота:\n" +
			"• Неограниченное общение с девушкой\n" +
			"• Создание и редактирование профилей\n" +
			"• Сохранение истории разговоров\n" +
			"• Приоритетная поддержка\n\n" +
			fmt.Sprintf("💰 Стоимость: %d₽/месяц", models.MonthlyBasePrice)
	}

	emoji, status := "💎", "Активная подписка"
	switch {
	case info.IsTrial:
		emoji, status = "🎁", "Пробный период"
	case info.Status == models.StatusCancelled:
		status = "Подписка отменена, доступ сохраняется до окончания"
	}
	hint := "✅ Все функции доступны"
	if info.DaysLeft <= 3 {
		hint = "🔄 Не забудьте продлить подписку!"
	}
	return fmt.Sprintf("%s %s\n\n📅 Действует до: %s\n⏰ Осталось дней: %d\n\n%s",
		emoji, status, FormatDateTime(info.EndTime), info.DaysLeft, hint)
}

// FormatProfile карточка профиля девушки.
func FormatProfile(p *models.Persona) string {
	parts := []string{"👤 **" + p.Name + "**"}
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("🎂 Возраст: %d лет", p.Age))
	}
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	add("💭 Характер", p.Personality)
	add("👗 Внешность", p.Appearance)
	add("🎯 Интересы", p.Interests)
	add("📖 История", p.Background)
	add("💬 Стиль общения", p.CommunicationStyle)
	return strings.Join(parts, "\n\n")
}

// FormatConversationStats статистика переписки.
func FormatConversationStats(st models.ConversationStats) string {
	if st.TotalMessages == 0 {
		return "📊 Статистика разговора:\n\nВы еще не начали общение с девушкой."
	}
	first, last := "Неизвестно", "Неизвестно"
	if st.FirstMessageAt != nil {
		first = st.FirstMessageAt.Format(dateLayout)
	}
	if st.LastMessageAt != nil {
		last = st.LastMessageAt.Format(dateTimeLayout)
	}
	return fmt.Sprintf("📊 Статистика разговора:\n\n"+
		"💬 Всего сообщений: %d\n"+
		"👤 Ваших сообщений: %d\n"+
		"💕 Сообщений девушки: %d\n\n"+
		"📅 Первое сообщение: %s\n"+
		"🕐 Последнее сообщение: %s",
		st.TotalMessages, st.UserMessages, st.AssistantMessages, first, last)
}

// FormatPlan описание тарифа.
func FormatPlan(p *models.Plan) string {
	parts := []string{
		"💎 **" + p.Name + "**",
		fmt.Sprintf("💰 Цена: %d₽", p.Price),
		fmt.Sprintf("📅 Период: %d дней", p.DurationDays),
	}
	if p.PlanType != models.PlanMonthly {
		parts = append(parts, fmt.Sprintf("📊 %d₽/месяц", p.MonthlyEquivalent()))
	}
	if p.DiscountPercentage > 0 {
		parts = append(parts, fmt.Sprintf("🎉 Экономия: %d%%", p.DiscountPercentage))
	}
	if p.IsPopular {
		parts = append(parts, "⭐ **ПОПУЛЯРНЫЙ ВЫБОР**")
	}
	if len(p.Features) > 0 {
		features := make([]string, len(p.Features))
		for i, f := range p.Features {
			features[i] = "• " + f
		}
		parts = append(parts, "\n**Возможности:**\n"+strings.Join(features, "\n"))
	}
	return strings.Join(parts, "\n")
}

// Greeting приветствие по времени суток.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Доброе утро! ☀️"
	case hour >= 12 && hour < 17:
		return "Добрый день! 🌤️"
	case hour >= 17 && hour < 22:
		return "Добрый вечер! 🌆"
	default:
		return "Доброй ночи! 🌙"
	}
}

// Pluralize выбирает форму слова для числа: один, два-четыре, пять и больше.
func Pluralize(n int, one, few, many string) string {
	n %= 100
	if n < 0 {
		n = -n
	}
	if n >= 11 && n <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}
