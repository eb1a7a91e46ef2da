// Package bot содержит типы, общие для транспорта, конвейера приема сообщений
// и диалоговой машины: входящее событие, ответ, кнопки и токены действий.
package bot

import (
	"errors"
	"strings"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// ErrChatUnavailable чат недоступен: бот заблокирован пользователем или чат
// удален. Повторная отправка не поможет.
var ErrChatUnavailable = errors.New("chat unavailable")

// Event входящее событие от пользователя. Заполнено либо Text (свободный
// текст), либо Action (команда, кнопка меню или callback).
type Event struct {
	UpdateID   int
	ChatID     int64
	From       models.Identity
	Text       string
	Action     Action
	Arg        string
	CallbackID string
}

// IsCallback пришло ли событие от inline-кнопки.
func (e Event) IsCallback() bool {
	return e.CallbackID != ""
}

// IsText свободный ли это текст. Callback текстом не бывает.
func (e Event) IsText() bool {
	return e.Action == "" && e.CallbackID == ""
}

// Button кнопка клавиатуры. URL-кнопка открывает ссылку, остальные
// возвращают токен действия.
type Button struct {
	Text   string
	Action Action
	Arg    string
	URL    string
}

// Data callback_data кнопки.
func (b Button) Data() string {
	return string(b.Action) + b.Arg
}

// Reply исходящее сообщение. Inline-клавиатура передается в Keyboard,
// ReplyKeyboard включает основное меню под полем ввода.
type Reply struct {
	Text          string
	Keyboard      [][]Button
	ReplyKeyboard bool
	Markdown      bool
	// Alert показывается всплывающим ответом на callback вместо сообщения.
	Alert bool
}

// Text простой ответ без клавиатуры.
func Text(text string) Reply {
	return Reply{Text: text}
}

// Action токен действия. Для действий с параметром токен служит префиксом,
// а параметр дописывается в конец callback_data.
type Action string

// Команды и кнопки основного меню.
const (
	ActionStart        Action = "start"
	ActionHelp         Action = "help"
	ActionCancel       Action = "cancel"
	ActionSubscription Action = "subscription"
	ActionProfile      Action = "profile"
	ActionChat         Action = "chat"
	ActionStop         Action = "stop"
	ActionSettings     Action = "settings"
)

// Подписка и оплата.
const (
	ActionSubscriptionInfo   Action = "subscription_info"
	ActionViewPlans          Action = "view_plans"
	ActionBuyPlan            Action = "buy_plan_"
	ActionConfirmBuyPlan     Action = "confirm_buy_plan_"
	ActionBackToSubscription Action = "back_to_subscription"
	ActionCancelSubscription Action = "cancel_subscription"
	ActionConfirmSubCancel   Action = "confirm_subscription_cancel"
	ActionAbortSubCancel     Action = "cancel_subscription_cancel"
	ActionCheckPayment       Action = "check_payment"
	ActionCancelPayment      Action = "cancel_payment"
)

// Профиль девушки.
const (
	ActionCreateProfile Action = "create_profile"
	ActionCreateManual  Action = "create_manual"
	ActionCreateAI      Action = "create_ai"
	ActionCreateRandom  Action = "create_random"
	ActionViewProfile   Action = "view_profile"
	ActionEditProfile   Action = "edit_profile"
	ActionEditField     Action = "edit_"
	ActionEditDone      Action = "edit_done"
	ActionDeleteProfile Action = "delete_profile"
	ActionConfirmDelete Action = "confirm_profile_delete"
	ActionAbortDelete   Action = "cancel_profile_delete"
	ActionStartChat     Action = "start_chat"
	ActionClearHistory  Action = "clear_history"
	ActionConfirmClear  Action = "confirm_clear_history"
	ActionAbortClear    Action = "cancel_clear_history"
	ActionStats         Action = "conversation_stats"
	ActionBackToMain    Action = "back_to_main"
)

// ActionUnknown нераспознанная команда или устаревшая кнопка. В диалог как
// текст не попадает, исходные данные лежат в Arg.
const ActionUnknown Action = "unknown"

// Административные команды.
const (
	ActionAdminNotifications      Action = "admin_notifications"
	ActionAdminCheckNotifications Action = "admin_check_notifications"
	ActionAdminResetLimit         Action = "admin_reset_limit"
	ActionAdminRateLimit          Action = "admin_ratelimit"
)

var exactActions = map[Action]struct{}{}

// Префиксы проверяются по порядку, длинные раньше коротких.
var prefixActions = []Action{ActionConfirmBuyPlan, ActionBuyPlan, ActionEditField}

func init() {
	for _, a := range []Action{
		ActionStart, ActionHelp, ActionCancel, ActionSubscription, ActionProfile, ActionChat,
		ActionStop, ActionSettings,
		ActionSubscriptionInfo, ActionViewPlans, ActionBackToSubscription, ActionCancelSubscription,
		ActionConfirmSubCancel, ActionAbortSubCancel, ActionCheckPayment, ActionCancelPayment,
		ActionCreateProfile, ActionCreateManual, ActionCreateAI, ActionCreateRandom, ActionViewProfile,
		ActionEditProfile, ActionEditDone, ActionDeleteProfile, ActionConfirmDelete, ActionAbortDelete,
		ActionStartChat, ActionClearHistory, ActionConfirmClear, ActionAbortClear, ActionStats,
		ActionBackToMain,
		ActionAdminNotifications, ActionAdminCheckNotifications, ActionAdminResetLimit, ActionAdminRateLimit,
	} {
		exactActions[a] = struct{}{}
	}
}

// ParseAction разбирает callback_data. Неизвестные данные возвращают пустое действие.
func ParseAction(data string) (Action, string) {
	if _, ok := exactActions[Action(data)]; ok {
		return Action(data), ""
	}
	for _, p := range prefixActions {
		if arg, ok := strings.CutPrefix(data, string(p)); ok && arg != "" {
			return p, arg
		}
	}
	return "", ""
}

// Тексты кнопок основного меню. Они зарезервированы и никогда не попадают
// в диалог как свободный текст.
const (
	MenuChat         = "💬 Общение"
	MenuProfile      = "👤 Профиль девушки"
	MenuSubscription = "💎 Подписка"
	MenuSettings     = "⚙️ Настройки"
	MenuHelp         = "ℹ️ Помощь"
)

var menuActions = map[string]Action{
	MenuChat:         ActionChat,
	MenuProfile:      ActionProfile,
	MenuSubscription: ActionSubscription,
	MenuSettings:     ActionSettings,
	MenuHelp:         ActionHelp,
}

// MenuAction действие для текста кнопки основного меню.
func MenuAction(text string) (Action, bool) {
	a, ok := menuActions[text]
	return a, ok
}

var commands = map[string]Action{
	"start":                     ActionStart,
	"help":                      ActionHelp,
	"cancel":                    ActionCancel,
	"subscription":              ActionSubscription,
	"profile":                   ActionProfile,
	"chat":                      ActionChat,
	"stop":                      ActionStop,
	"admin_notifications":       ActionAdminNotifications,
	"admin_check_notifications": ActionAdminCheckNotifications,
	"admin_reset_limit":         ActionAdminResetLimit,
	"admin_ratelimit":           ActionAdminRateLimit,
}

// CommandAction действие для команды без ведущего слэша.
func CommandAction(command string) (Action, bool) {
	a, ok := commands[command]
	return a, ok
}

// IsAdmin административное ли действие.
func (a Action) IsAdmin() bool {
	return strings.HasPrefix(string(a), "admin_")
}
