package dialogue

import (
	"fmt"
	"strings"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

const navigationHint = "Используйте кнопки ниже для навигации:"

func markdown(text string, kb [][]bot.Button) bot.Reply {
	return bot.Reply{Text: text, Keyboard: kb, Markdown: true}
}

func alert(text string) bot.Reply {
	return bot.Reply{Text: text, Alert: true}
}

func mainMenu(text string) bot.Reply {
	return bot.Reply{Text: text, ReplyKeyboard: true, Markdown: true}
}

func welcomeNewText(greeting string, trialDays int) string {
	return greeting + "\n\n" +
		"🎉 **Добро пожаловать в бота-компаньона!** 💕\n\n" +
		"✅ **Пробный период активирован!**\n" +
		fmt.Sprintf("🎁 Вам предоставлено **%d %s** бесплатного доступа ко всем функциям!\n\n",
			trialDays, bot.Pluralize(trialDays, "день", "дня", "дней")) +
		"**Что вы можете делать:**\n" +
		"• 💬 Общаться с виртуальной девушкой\n" +
		"• 👤 Настроить ее характер и внешность\n" +
		"• 💭 Вести приватные разговоры\n" +
		"• 📱 Пользоваться всеми функциями без ограничений\n\n" +
		"**Начните с создания профиля девушки!** 👤\n\n" +
		navigationHint
}

func welcomeBackText(greeting string, info models.SubscriptionInfo) string {
	if !info.HasSubscription {
		return greeting + "\n\n" +
			"С возвращением! 💕\n\n" +
			"💡 Пробный период уже использован.\n" +
			"💎 Оформите подписку для доступа ко всем функциям!\n\n" +
			navigationHint
	}
	status := "💎 Активная подписка"
	if info.IsTrial {
		status = "🎁 Пробный период"
	}
	return fmt.Sprintf("%s\n\nС возвращением! 💕\n\n"+
		"📊 **Статус:** %s\n"+
		"⏰ **Осталось дней:** %d\n\n"+
		"✅ Все функции доступны!\n\n%s",
		greeting, status, info.DaysLeft, navigationHint)
}

func helpText(adminUsername string) string {
	support := "По всем вопросам обращайтесь в поддержку"
	if adminUsername != "" {
		support = "По всем вопросам обращайтесь: @" + adminUsername
	}
	return "🤖 **Помощь по использованию бота**\n\n" +
		"**Основные команды:**\n" +
		"/start - Главное меню\n" +
		"/help - Эта справка\n" +
		"/subscription - Управление подпиской\n" +
		"/profile - Управление профилем девушки\n" +
		"/chat - Начать общение\n" +
		"/stop - Завершить общение\n" +
		"/cancel - Отменить текущее действие\n\n" +
		"**Как пользоваться:**\n" +
		"1️⃣ Создайте профиль девушки в разделе '👤 Профиль девушки'\n" +
		"2️⃣ Настройте ее характер, внешность и интересы\n" +
		"3️⃣ Начните общение в разделе '💬 Общение'\n\n" +
		"**Подписка:**\n" +
		"• 💰 Посмотреть все тарифы: /subscription\n\n" +
		"**Поддержка:**\n" + support
}

const (
	unknownInputText = "🤔 Не понимаю вас.\n\nИспользуйте кнопки меню или команду /help."
	cancelledText    = "❌ Действие отменено.\n\nВы вернулись в главное меню."
	mainMenuText     = "🏠 Главное меню\n\nВыберите действие:"
	noRightsText     = "❌ У вас нет прав для выполнения этой команды"
)

func settingsText(u *models.User, info models.SubscriptionInfo) string {
	sub := "❌ Нет активной подписки"
	if info.HasSubscription {
		sub = fmt.Sprintf("✅ До %s", bot.FormatDateTime(info.EndTime))
	}
	username := "не указан"
	if u.Username != "" {
		username = "@" + u.Username
	}
	return fmt.Sprintf("⚙️ **Настройки**\n\n"+
		"👤 Имя: %s\n"+
		"🔗 Username: %s\n"+
		"🆔 Telegram ID: %d\n"+
		"💎 Подписка: %s",
		u.DisplayName(), username, u.TelegramID, sub)
}

// Профиль.

const (
	noProfileText = "👤 **Профиль девушки**\n\n" +
		"У вас пока нет созданного профиля девушки.\n" +
		"Создайте профиль, чтобы начать общение!"
	chooseCreationText = "👤 **Создание профиля девушки**\n\n" +
		"Выберите способ создания:\n\n" +
		"📝 **Вручную** - вы сами зададите все характеристики\n" +
		"🤖 **С помощью ИИ** - опишите предпочтения, ИИ создаст профиль\n" +
		"🎲 **Случайный** - ИИ создаст случайный профиль"
	wizardStartText = "👤 **Создание профиля вручную**\n\n" +
		"Давайте создадим профиль вашей идеальной девушки!\n\n" +
		"Шаг 1/6: Как зовут вашу девушку?\n" +
		"Введите имя:"
	preferencesPromptText = "🤖 **Создание профиля с помощью ИИ**\n\n" +
		"Опишите, какую девушку вы хотели бы видеть:\n\n" +
		"Например:\n" +
		"• Добрая и веселая блондинка 25 лет\n" +
		"• Умная брюнетка, любит книги и кино\n" +
		"• Спортивная девушка с чувством юмора\n\n" +
		"Опишите ваши предпочтения:"
	profileExistsText = "⚠️ У вас уже есть активный профиль.\n\n" +
		"Удалите текущий профиль или создайте новый через меню 'Создать профиль'."
	profileErrorText     = "❌ Ошибка при создании профиля. Попробуйте еще раз."
	profileNotFoundText  = "❌ Профиль не найден"
	editMenuText         = "✏️ **Редактирование профиля**\n\nВыберите, что хотите изменить:"
	deleteConfirmText    = "🗑 **Удаление профиля**\n\n⚠️ Вы уверены, что хотите удалить профиль?\nЭто действие нельзя отменить!"
	deletedText          = "✅ Профиль удален\n\nВы можете создать новый профиль в любое время."
	deleteAbortedText    = "Удаление профиля отменено"
	askMoreText          = "Что еще хотите изменить?"
	preferencesBusyText  = "🤖 Создаю профиль на основе ваших предпочтений..."
	randomBusyText       = "🎲 Создаю случайный профиль..."
	profileRandomErrText = "❌ **Ошибка при создании профиля**\n\nПопробуйте еще раз или создайте профиль вручную."
)

func activeProfileText(p *models.Persona) string {
	return "👤 **Активный профиль:**\n\n" + bot.FormatProfile(p)
}

func profileCreatedText(p *models.Persona) string {
	return "🎉 **Профиль создан!**\n\n" + bot.FormatProfile(p) + "\n\nТеперь вы можете начать общение! 💕"
}

func profileSuggestedText(p *models.Persona) string {
	return "🎉 **Профиль создан с помощью ИИ!**\n\n" + bot.FormatProfile(p) +
		"\n\nЕсли что-то не нравится, вы можете отредактировать профиль! 💕"
}

func profileRandomText(p *models.Persona) string {
	return "🎉 **Профиль создан!**\n\n" + bot.FormatProfile(p) + "\n\n" +
		"🎲 **Случайный профиль готов!**\n" +
		"Теперь вы можете начать общение! 💕\n\n" +
		"⚙️ Если что-то не нравится, вы можете отредактировать профиль!"
}

// wizardPrompt подтверждение шага step и вопрос следующего.
func wizardPrompt(step int, d persona.Draft) string {
	switch wizardSteps[step] {
	case models.FieldName:
		return fmt.Sprintf("✅ Имя: %s\n\nШаг 2/6: Сколько лет вашей девушке?\nВведите возраст (18-50):", d.Name)
	case models.FieldAge:
		return fmt.Sprintf("✅ Возраст: %d %s\n\nШаг 3/6: Опишите характер вашей девушки:\n"+
			"Например: добрая, веселая, умная, застенчивая...", d.Age, bot.Pluralize(d.Age, "год", "года", "лет"))
	case models.FieldPersonality:
		return "✅ Характер сохранен\n\nШаг 4/6: Опишите внешность вашей девушки:\n" +
			"Например: блондинка с голубыми глазами, высокая..."
	case models.FieldAppearance:
		return "✅ Внешность сохранена\n\nШаг 5/6: Какие у неё интересы и хобби?\n" +
			"Например: чтение, спорт, музыка, путешествия..."
	case models.FieldInterests:
		return "✅ Интересы сохранены\n\nШаг 6/6: Расскажите о её предыстории\n" +
			"Например: студентка, работает дизайнером, живет в Москве..."
	default:
		return ""
	}
}

var editPrompts = map[models.PersonaField]string{
	models.FieldName:               "✏️ **Редактирование имени**\n\nВведите новое имя для вашей девушки:",
	models.FieldAge:                "✏️ **Редактирование возраста**\n\nВведите новый возраст (18-50):",
	models.FieldPersonality:        "✏️ **Редактирование характера**\n\nОпишите характер вашей девушки:\nНапример: добрая, веселая, умная, застенчивая...",
	models.FieldAppearance:         "✏️ **Редактирование внешности**\n\nОпишите внешность вашей девушки:\nНапример: блондинка с голубыми глазами, высокая...",
	models.FieldInterests:          "✏️ **Редактирование интересов**\n\nКакие у неё интересы и хобби?\nНапример: чтение, спорт, музыка, путешествия...",
	models.FieldBackground:         "✏️ **Редактирование предыстории**\n\nРасскажите о её предыстории:\nНапример: студентка, работает дизайнером, живет в Москве...",
	models.FieldCommunicationStyle: "✏️ **Редактирование стиля общения**\n\nОпишите, как она общается:\nНапример: дружелюбно и тепло, игриво, серьезно...",
}

func fieldUpdatedText(field models.PersonaField, p *models.Persona) string {
	var head string
	switch field {
	case models.FieldName:
		head = "✅ **Имя изменено на: " + p.Name + "**"
	case models.FieldAge:
		head = fmt.Sprintf("✅ **Возраст изменен на: %d %s**", p.Age, bot.Pluralize(p.Age, "год", "года", "лет"))
	case models.FieldPersonality:
		head = "✅ **Характер изменен**"
	case models.FieldAppearance:
		head = "✅ **Внешность изменена**"
	case models.FieldInterests:
		head = "✅ **Интересы изменены**"
	case models.FieldBackground:
		head = "✅ **Предыстория изменена**"
	case models.FieldCommunicationStyle:
		head = "✅ **Стиль общения изменен**"
	}
	return head + "\n\n" + askMoreText
}

// Общение.

const (
	noPersonaText = "❌ У вас нет активного профиля девушки!\n\n" +
		"Создайте профиль в разделе '👤 Профиль девушки', чтобы начать общение."
	chatLostText       = "❌ Ошибка: профиль не найден. Начните общение заново."
	notChattingText    = "❌ Ошибка: профиль не найден"
	chatStoppedText    = "✅ Общение завершено.\n\nВы можете вернуться к общению в любое время!"
	clearConfirmText   = "🗑 **Очистка истории**\n\n⚠️ Вы уверены, что хотите очистить всю историю разговора?\nЭто действие нельзя отменить!"
	clearAbortedText   = "Очистка истории отменена"
)

func historyClearedText(n int64) string {
	return fmt.Sprintf("✅ История очищена\n\nУдалено сообщений: %d\nТеперь вы можете начать общение заново!", n)
}

// Подписка и оплата.

const (
	noActiveSubText     = "❌ Активная подписка не найдена"
	subCancelledText    = "✅ Подписка отменена\n\nДоступ сохраняется до окончания оплаченного периода."
	subCancelAbortText  = "Отмена подписки отменена 😊"
	subCancelAskText    = "❓ Вы уверены, что хотите отменить подписку?"
	noPlansText         = "❌ Планы подписок не найдены"
	planNotFoundText    = "❌ План не найден"
	chargeErrorText     = "❌ Ошибка при создании платежа. Попробуйте позже."
	paymentCanceledText = "❌ Оплата отменена\n\nВы можете вернуться к оплате в любое время через меню подписки."
	noPendingText       = "❌ Нет ожидающего платежа"
	paymentPendingText  = "⏳ Платеж еще не завершен.\n\nЕсли вы уже оплатили, подождите немного и проверьте снова."
	paymentDoneText     = "✅ Оплата подтверждена"
	paymentFailedText   = "❌ Платеж отменен. Вы можете попробовать оплатить снова через меню подписки."
	awaitingPaymentText = "⏳ Ожидаем оплату.\n\nНажмите 'Оплатить' для перехода к оплате или отмените платеж."
)

func plansText(plans []models.Plan) string {
	parts := make([]string, len(plans))
	for i := range plans {
		parts[i] = bot.FormatPlan(&plans[i])
	}
	return "💳 **Выберите план подписки:**\n\n" + strings.Join(parts, "\n\n---\n\n")
}

func planDetailsText(p *models.Plan) string {
	return "💳 **Подробности плана:**\n\n" + bot.FormatPlan(p) + "\n\nПодтвердите покупку:"
}

// Администрирование.

func yesNo(v bool) string {
	if v {
		return "✅ Да"
	}
	return "❌ Нет"
}

func notificationInfoText(info notification.Info) string {
	last := "еще не выполнялась"
	if info.LastSweepAt != nil {
		last = bot.FormatDateTime(*info.LastSweepAt)
	}
	return fmt.Sprintf("📊 **Статус системы уведомлений**\n\n"+
		"🔧 Уведомления включены: %s\n"+
		"⏰ Интервал проверки: %s\n"+
		"📅 Уведомлять за: %d дн.\n"+
		"📮 Транспорт: %s\n\n"+
		"**Последняя проверка:** %s\n"+
		"📤 Предупреждений: %d\n"+
		"❌ Уведомлений об истечении: %d\n"+
		"⚠️ Ошибок: %d\n\n"+
		"💡 Используйте /admin_check_notifications для принудительной проверки",
		yesNo(info.Enabled), info.CheckInterval, info.ExpiryDays, info.Transport,
		last, info.LastStats.ExpiryWarnings, info.LastStats.Expired, info.LastStats.Errors)
}

const sweepStartedText = "🔄 Запускаю проверку уведомлений..."

func sweepDoneText(st notification.Stats) string {
	return fmt.Sprintf("✅ **Проверка завершена**\n\n"+
		"📤 Предупреждений об истечении: %d\n"+
		"❌ Уведомлений об истечении: %d\n"+
		"⚠️ Ошибок: %d",
		st.ExpiryWarnings, st.Expired, st.Errors)
}

const resetUsageText = "Использование: /admin_reset_limit <telegram_id>"

func limitResetText(telegramID int64) string {
	return fmt.Sprintf("✅ Лимит сообщений пользователя %d сброшен", telegramID)
}

func rateLimitStatsText(st ratelimiter.Stats) string {
	return fmt.Sprintf("🚦 **Ограничение частоты**\n\n"+
		"🔧 Включено: %s\n"+
		"📨 Сообщений в окне: %d за %s\n"+
		"⚠️ Предупреждение после: %d\n"+
		"🚫 Бан: %s\n\n"+
		"👥 Активных окон: %d\n"+
		"🚫 Забанено: %d\n"+
		"⚠️ Предупреждено: %d",
		yesNo(st.Enabled), st.MessagesPerWindow, st.Window, st.WarningThreshold, st.BanDuration,
		st.ActiveWindows, st.BannedUsers, st.WarnedUsers)
}
