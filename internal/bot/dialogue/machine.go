// Package dialogue диалоговая машина бота. Состояние пользователя хранится
// явно (idle, мастер профиля, редактирование, общение, ожидание оплаты) и
// меняется только в обработчиках переходов.
//
// Токены действий (команды, кнопки меню и callback) проверяются раньше
// состояния: они всегда попадают в свой обработчик, а свободный текст
// разбирается по текущему состоянию.
package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/bot/pipeline"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

// Entitlements подписки пользователя.
type Entitlements interface {
	GetActive(ctx context.Context, userID int64) (*models.Subscription, error)
	Info(ctx context.Context, userID int64) (models.SubscriptionInfo, error)
	StartTrial(ctx context.Context, user *models.User) (*models.Subscription, error)
	Cancel(ctx context.Context, sub *models.Subscription) error
}

// Personas профили девушек.
type Personas interface {
	Active(ctx context.Context, userID int64) (*models.Persona, error)
	CreateFromDraft(ctx context.Context, userID int64, d persona.Draft) (*models.Persona, error)
	CreateSuggested(ctx context.Context, user *models.User, preferences string) (*models.Persona, error)
	CreateRandom(ctx context.Context, user *models.User) (*models.Persona, error)
	UpdateField(ctx context.Context, userID int64, field models.PersonaField, raw string) (*models.Persona, error)
	Delete(ctx context.Context, userID int64) error
}

// Conversations переписка с профилем.
type Conversations interface {
	Start(ctx context.Context, userID int64, p *models.Persona) (string, error)
	Reply(ctx context.Context, userID int64, p *models.Persona, text string) (string, error)
	Clear(ctx context.Context, userID, personaID int64) (int64, error)
	Stats(ctx context.Context, userID, personaID int64) (models.ConversationStats, error)
}

// Payments тарифы и платежи.
type Payments interface {
	Plans(ctx context.Context) ([]models.Plan, error)
	Plan(ctx context.Context, planID int64) (*models.Plan, error)
	CreateCharge(ctx context.Context, user *models.User, plan *models.Plan) (*models.Payment, error)
	CheckPayment(ctx context.Context, userID int64, externalID string) (payment.Result, error)
}

// Notifications планировщик уведомлений.
type Notifications interface {
	Info() notification.Info
	Sweep(ctx context.Context, now time.Time) notification.Stats
}

// Limits управление лимитом сообщений.
type Limits interface {
	Reset(ctx context.Context, userID int64) error
	Stats(ctx context.Context) (ratelimiter.Stats, error)
}

// Typer индикатор набора текста.
type Typer interface {
	Typing(ctx context.Context, chatID int64)
}

// Deps сервисы, которые вызывает машина. Typer может быть nil.
type Deps struct {
	Entitlements  Entitlements
	Personas      Personas
	Conversations Conversations
	Payments      Payments
	Notifications Notifications
	Limits        Limits
	Typer         Typer
}

// Config параметры машины.
type Config struct {
	AdminUsername string
	TrialDays     int
	// Location часовой пояс для приветствия по времени суток.
	Location *time.Location
}

// turn одно событие в обработке.
type turn struct {
	ev    bot.Event
	user  *models.User
	state State
	next  *State
}

// transition запоминает новое состояние. Оно сохраняется, только если
// обработчик завершился без ошибки.
func (t *turn) transition(s State) {
	t.next = &s
}

type handler func(ctx context.Context, t *turn) ([]bot.Reply, error)

// Machine диалоговая машина.
type Machine struct {
	deps   Deps
	states *Store
	clock  clock.Clock
	cfg    Config
	log    *slog.Logger

	actions map[bot.Action]handler
	texts   map[Kind]handler
}

// New создает диалоговую машину.
func New(deps Deps, states *Store, clk clock.Clock, cfg Config, log *slog.Logger) *Machine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := &Machine{
		deps:   deps,
		states: states,
		clock:  clk,
		cfg:    cfg,
		log:    log,
	}
	m.actions = map[bot.Action]handler{
		bot.ActionStart:      m.start,
		bot.ActionHelp:       m.help,
		bot.ActionCancel:     m.cancel,
		bot.ActionSettings:   m.settings,
		bot.ActionBackToMain: m.backToMain,

		bot.ActionProfile:       m.profileMenu,
		bot.ActionCreateProfile: m.chooseCreation,
		bot.ActionCreateManual:  m.startWizard,
		bot.ActionCreateAI:      m.askPreferences,
		bot.ActionCreateRandom:  m.createRandom,
		bot.ActionViewProfile:   m.viewProfile,
		bot.ActionEditProfile:   m.editMenu,
		bot.ActionEditField:     m.startEditing,
		bot.ActionEditDone:      m.editDone,
		bot.ActionDeleteProfile: m.askDelete,
		bot.ActionConfirmDelete: m.confirmDelete,
		bot.ActionAbortDelete:   m.abortDelete,

		bot.ActionChat:         m.startChat,
		bot.ActionStartChat:    m.startChat,
		bot.ActionStop:         m.stopChat,
		bot.ActionClearHistory: m.askClear,
		bot.ActionConfirmClear: m.confirmClear,
		bot.ActionAbortClear:   m.abortClear,
		bot.ActionStats:        m.stats,

		bot.ActionSubscription:       m.subscriptionMenu,
		bot.ActionBackToSubscription: m.subscriptionMenu,
		bot.ActionSubscriptionInfo:   m.subscriptionInfo,
		bot.ActionViewPlans:          m.viewPlans,
		bot.ActionBuyPlan:            m.planDetails,
		bot.ActionConfirmBuyPlan:     m.buyPlan,
		bot.ActionCheckPayment:       m.checkPayment,
		bot.ActionCancelPayment:      m.cancelPayment,
		bot.ActionCancelSubscription: m.askCancelSubscription,
		bot.ActionConfirmSubCancel:   m.confirmCancelSubscription,
		bot.ActionAbortSubCancel:     m.abortCancelSubscription,

		bot.ActionAdminNotifications:      m.admin(m.notificationInfo),
		bot.ActionAdminCheckNotifications: m.admin(m.runSweep),
		bot.ActionAdminResetLimit:         m.admin(m.resetLimit),
		bot.ActionAdminRateLimit:          m.admin(m.rateLimitStats),
	}
	m.texts = map[Kind]handler{
		KindIdle:            m.unknownInput,
		KindWizard:          m.wizardInput,
		KindPreferences:     m.preferencesInput,
		KindEditing:         m.editInput,
		KindChatting:        m.chatInput,
		KindAwaitingPayment: m.awaitingPaymentInput,
	}
	return m
}

// privilegedActions действия, доступные только с действующей подпиской.
var privilegedActions = map[bot.Action]bool{
	bot.ActionChat:          true,
	bot.ActionStartChat:     true,
	bot.ActionProfile:       true,
	bot.ActionCreateProfile: true,
	bot.ActionCreateManual:  true,
	bot.ActionCreateAI:      true,
	bot.ActionCreateRandom:  true,
	bot.ActionEditProfile:   true,
	bot.ActionEditField:     true,
}

// Classify определяет ворота для события. Свободный текст и callback
// расходуют лимит, команды и кнопки основного меню нет. Доступ к тексту
// зависит от состояния, в котором он пришел.
func (m *Machine) Classify(ctx context.Context, ev bot.Event) pipeline.Class {
	if ev.Action.IsAdmin() {
		return pipeline.Class{}
	}
	c := pipeline.Class{RateLimited: ev.IsText() || ev.IsCallback()}
	if !ev.IsText() {
		c.Privileged = privilegedActions[ev.Action]
		return c
	}
	st, err := m.states.Load(ctx, ev.From.TelegramID)
	if err != nil {
		m.log.Warn("failed to load dialogue state", sl.TelegramID(ev.From.TelegramID), sl.Err(err))
		return c
	}
	c.Privileged = st.Kind.privileged()
	return c
}

// Dispatch выполняет переход для события и возвращает ответы пользователю.
func (m *Machine) Dispatch(ctx context.Context, req *pipeline.Request) ([]bot.Reply, error) {
	st, err := m.states.Load(ctx, req.Event.From.TelegramID)
	if err != nil {
		return nil, err
	}
	t := &turn{ev: req.Event, user: req.User, state: st}

	h := m.route(t)
	replies, err := h(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.next != nil {
		if err := m.states.Save(ctx, t.ev.From.TelegramID, *t.next); err != nil {
			return nil, err
		}
	}
	return replies, nil
}

func (m *Machine) route(t *turn) handler {
	if !t.ev.IsText() {
		if h, ok := m.actions[t.ev.Action]; ok {
			return h
		}
		return m.unknownInput
	}
	if h, ok := m.texts[t.state.Kind]; ok {
		return h
	}
	return m.unknownInput
}

func (m *Machine) unknownInput(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{bot.Text(unknownInputText)}, nil
}
