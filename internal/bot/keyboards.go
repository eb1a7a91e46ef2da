package bot

import (
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// MainMenu раскладка основного меню под полем ввода.
var MainMenu = [][]string{
	{MenuChat, MenuProfile},
	{MenuSubscription, MenuSettings},
	{MenuHelp},
}

func row(buttons ...Button) []Button {
	return buttons
}

// SubscriptionKeyboard клавиатура экрана подписки.
func SubscriptionKeyboard(hasSubscription bool) [][]Button {
	var kb [][]Button
	if hasSubscription {
		kb = append(kb,
			row(Button{Text: "💳 Продлить подписку", Action: ActionViewPlans}),
			row(Button{Text: "❌ Отменить подписку", Action: ActionCancelSubscription}),
		)
	} else {
		kb = append(kb, row(Button{Text: "💳 Посмотреть тарифы", Action: ActionViewPlans}))
	}
	return append(kb, row(Button{Text: "📊 Информация о подписке", Action: ActionSubscriptionInfo}))
}

// ProfileKeyboard клавиатура экрана профиля.
func ProfileKeyboard(hasProfile bool) [][]Button {
	if !hasProfile {
		return [][]Button{
			row(Button{Text: "➕ Создать профиль", Action: ActionCreateProfile}),
			row(Button{Text: "🎲 Случайный профиль", Action: ActionCreateRandom}),
		}
	}
	return [][]Button{
		row(Button{Text: "💬 Начать общение", Action: ActionStartChat}),
		row(
			Button{Text: "👀 Посмотреть профиль", Action: ActionViewProfile},
			Button{Text: "✏️ Редактировать", Action: ActionEditProfile},
		),
		row(
			Button{Text: "🔄 Новый профиль", Action: ActionCreateProfile},
			Button{Text: "🗑 Удалить профиль", Action: ActionDeleteProfile},
		),
	}
}

// ProfileCreationKeyboard выбор способа создания профиля.
func ProfileCreationKeyboard() [][]Button {
	return [][]Button{
		row(Button{Text: "📝 Создать вручную", Action: ActionCreateManual}),
		row(Button{Text: "🤖 Создать с помощью ИИ", Action: ActionCreateAI}),
		row(Button{Text: "🎲 Случайный профиль", Action: ActionCreateRandom}),
	}
}

var fieldLabels = map[models.PersonaField]string{
	models.FieldName:               "👤 Имя",
	models.FieldAge:                "🎂 Возраст",
	models.FieldPersonality:        "💭 Характер",
	models.FieldAppearance:         "👗 Внешность",
	models.FieldInterests:          "🎯 Интересы",
	models.FieldBackground:         "📖 История",
	models.FieldCommunicationStyle: "💬 Стиль общения",
}

// FieldLabel подпись поля профиля.
func FieldLabel(f models.PersonaField) string {
	return fieldLabels[f]
}

// ProfileEditKeyboard выбор поля для редактирования, по два в ряд.
func ProfileEditKeyboard() [][]Button {
	var kb [][]Button
	var cur []Button
	for _, f := range models.EditableFields {
		cur = append(cur, Button{Text: fieldLabels[f], Action: ActionEditField, Arg: string(f)})
		if len(cur) == 2 {
			kb = append(kb, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		kb = append(kb, cur)
	}
	return append(kb, row(Button{Text: "✅ Готово", Action: ActionEditDone}))
}

// ConversationKeyboard клавиатура режима общения.
func ConversationKeyboard() [][]Button {
	return [][]Button{
		row(Button{Text: "🗑 Очистить историю", Action: ActionClearHistory}),
		row(Button{Text: "📊 Статистика", Action: ActionStats}),
		row(Button{Text: "🔙 Назад", Action: ActionBackToMain}),
	}
}

// PaymentKeyboard ссылка на оплату и управление ожиданием платежа.
func PaymentKeyboard(confirmationURL string) [][]Button {
	return [][]Button{
		row(Button{Text: "💳 Оплатить", URL: confirmationURL}),
		row(Button{Text: "✅ Проверить оплату", Action: ActionCheckPayment}),
		row(Button{Text: "❌ Отменить", Action: ActionCancelPayment}),
	}
}

var planEmoji = map[models.PlanType]string{
	models.PlanMonthly:   "📅",
	models.PlanQuarterly: "📈",
	models.PlanYearly:    "🏆",
}

// PlansKeyboard список тарифов.
func PlansKeyboard(plans []models.Plan) [][]Button {
	kb := make([][]Button, 0, len(plans)+1)
	for _, p := range plans {
		emoji, ok := planEmoji[p.PlanType]
		if !ok {
			emoji = "💸"
		}
		text := fmt.Sprintf("%s %s - %d₽", emoji, p.Name, p.Price)
		if p.IsPopular {
			text = "⭐ " + text
		}
		if p.DiscountPercentage > 0 {
			text += fmt.Sprintf(" (-%d%%)", p.DiscountPercentage)
		}
		kb = append(kb, row(Button{Text: text, Action: ActionBuyPlan, Arg: fmt.Sprint(p.ID)}))
	}
	return append(kb, row(Button{Text: "🔙 Назад", Action: ActionBackToSubscription}))
}

// PlanDetailsKeyboard подтверждение покупки тарифа.
func PlanDetailsKeyboard(planID int64) [][]Button {
	return [][]Button{
		row(Button{Text: "💳 Купить", Action: ActionConfirmBuyPlan, Arg: fmt.Sprint(planID)}),
		row(Button{Text: "🔙 К списку планов", Action: ActionViewPlans}),
	}
}

// ConfirmationKeyboard да/нет для подтверждения действия.
func ConfirmationKeyboard(yes, no Action) [][]Button {
	return [][]Button{
		row(Button{Text: "✅ Да", Action: yes}, Button{Text: "❌ Нет", Action: no}),
	}
}
