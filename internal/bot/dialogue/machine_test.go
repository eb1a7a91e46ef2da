package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/bot/pipeline"
	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/services/conversation"
	"github.com/magabrotheeeer/companion-bot/internal/services/entitlement"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

const testTelegramID = 100

type harness struct {
	m        *Machine
	store    *Store
	subs     *memSubscriptions
	personas *memPersonas
	messages *memMessages
	gen      *stubGenerator
	payments *stubPayments
	notif    *stubNotifications
	limits   *stubLimits
	clk      *clock.Fake
	username string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, _ := setupStore(t)
	log := newNoopLogger()
	h := &harness{
		store:    store,
		subs:     newMemSubscriptions(),
		personas: &memPersonas{},
		messages: &memMessages{},
		gen:      &stubGenerator{},
		payments: &stubPayments{},
		notif:    &stubNotifications{},
		limits:   &stubLimits{},
		clk:      clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		username: "ivan",
	}
	ent := entitlement.New(h.subs, h.clk, config.Subscription{TrialDays: 7}, log)
	h.m = New(Deps{
		Entitlements:  ent,
		Personas:      persona.New(h.personas, stubSuggester{}, log),
		Conversations: conversation.New(h.messages, h.gen, log),
		Payments:      h.payments,
		Notifications: h.notif,
		Limits:        h.limits,
	}, store, h.clk, Config{AdminUsername: "@Boss", TrialDays: 7}, log)
	return h
}

func (h *harness) send(t *testing.T, ev bot.Event) []bot.Reply {
	t.Helper()
	ctx := context.Background()
	ev.ChatID = testTelegramID
	ev.From = models.Identity{TelegramID: testTelegramID, Username: h.username, FirstName: "Иван"}
	user, err := h.subs.UpsertUser(ctx, ev.From)
	require.NoError(t, err)
	replies, err := h.m.Dispatch(ctx, &pipeline.Request{Event: ev, User: user, Class: h.m.Classify(ctx, ev)})
	require.NoError(t, err)
	return replies
}

// last текст последнего ответа.
func (h *harness) last(t *testing.T, ev bot.Event) string {
	t.Helper()
	replies := h.send(t, ev)
	require.NotEmpty(t, replies)
	return replies[len(replies)-1].Text
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, err := h.store.Load(context.Background(), testTelegramID)
	require.NoError(t, err)
	return st
}

func (h *harness) userID() int64 {
	return testTelegramID * 10
}

func (h *harness) createPersona(t *testing.T) *models.Persona {
	t.Helper()
	p := &models.Persona{UserID: h.userID(), Name: "Анна", Age: 23, Personality: "добрая и веселая"}
	require.NoError(t, h.personas.CreatePersona(context.Background(), p))
	return p
}

func text(s string) bot.Event {
	return bot.Event{Text: s}
}

func command(a bot.Action, arg string) bot.Event {
	return bot.Event{Action: a, Arg: arg}
}

func callback(a bot.Action, arg string) bot.Event {
	return bot.Event{Action: a, Arg: arg, CallbackID: "cb-1"}
}

func TestMachine_StartActivatesTrialOnce(t *testing.T) {
	h := newHarness(t)
	start := h.clk.Now()

	replies := h.send(t, command(bot.ActionStart, ""))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].ReplyKeyboard)
	assert.Contains(t, replies[0].Text, "Доброе утро! ☀️")
	assert.Contains(t, replies[0].Text, "Пробный период активирован")
	assert.Contains(t, replies[0].Text, "**7 дней**")

	subs := h.subs.all(h.userID())
	require.Len(t, subs, 1)
	assert.Equal(t, models.StatusTrial, subs[0].Status)
	assert.Equal(t, start.AddDate(0, 0, 7), subs[0].EndTime)
	assert.True(t, h.subs.user(testTelegramID).TrialUsed)

	again := h.last(t, command(bot.ActionStart, ""))
	assert.Contains(t, again, "С возвращением")
	assert.Contains(t, again, "🎁 Пробный период")
	assert.Len(t, h.subs.all(h.userID()), 1)
}

func TestMachine_StartAfterTrialExpired(t *testing.T) {
	h := newHarness(t)
	h.send(t, command(bot.ActionStart, ""))
	h.clk.Advance(8 * 24 * time.Hour)

	got := h.last(t, command(bot.ActionStart, ""))
	assert.Contains(t, got, "Пробный период уже использован")
	assert.Len(t, h.subs.all(h.userID()), 1)
}

func TestMachine_WizardRoundTrip(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.last(t, callback(bot.ActionCreateManual, "")), "Шаг 1/6")
	assert.Equal(t, State{Kind: KindWizard, Draft: &persona.Draft{}}, h.state(t))

	steps := []struct {
		input string
		want  string
		step  int
	}{
		{"А1", "корректное имя", 0},
		{"Анна", "Шаг 2/6", 1},
		{"семнадцать", "корректный возраст", 1},
		{"17", "корректный возраст", 1},
		{"23", "Шаг 3/6", 2},
		{"добрая", "подробнее", 2},
		{"добрая и веселая", "Шаг 4/6", 3},
		{"блондинка с голубыми глазами", "Шаг 5/6", 4},
		{"чтение", "Шаг 6/6", 5},
	}
	for _, s := range steps {
		assert.Contains(t, h.last(t, text(s.input)), s.want, s.input)
		st := h.state(t)
		require.Equal(t, KindWizard, st.Kind)
		assert.Equal(t, s.step, st.Step, s.input)
	}

	replies := h.send(t, text("студентка"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Профиль создан")
	assert.Equal(t, bot.ProfileKeyboard(true), replies[0].Keyboard)
	assert.Equal(t, KindIdle, h.state(t).Kind)

	p, err := h.personas.ActivePersona(context.Background(), h.userID())
	require.NoError(t, err)
	assert.Equal(t, "Анна", p.Name)
	assert.Equal(t, 23, p.Age)
	assert.Equal(t, "добрая и веселая", p.Personality)
	assert.Equal(t, "блондинка с голубыми глазами", p.Appearance)
	assert.Equal(t, "чтение", p.Interests)
	assert.Equal(t, "студентка", p.Background)
	assert.Equal(t, persona.DefaultCommunicationStyle, p.CommunicationStyle)
}

func TestMachine_CancelDiscardsWizard(t *testing.T) {
	h := newHarness(t)
	h.send(t, callback(bot.ActionCreateManual, ""))
	h.send(t, text("Анна"))

	replies := h.send(t, command(bot.ActionCancel, ""))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].ReplyKeyboard)
	assert.Equal(t, KindIdle, h.state(t).Kind)

	_, err := h.personas.ActivePersona(context.Background(), h.userID())
	assert.Error(t, err)
	assert.Equal(t, unknownInputText, h.last(t, text("23")))
}

func TestMachine_ReservedTokensKeepWizard(t *testing.T) {
	h := newHarness(t)
	h.send(t, callback(bot.ActionCreateManual, ""))
	h.send(t, text("Анна"))

	assert.Contains(t, h.last(t, command(bot.ActionHelp, "")), "Помощь по использованию бота")
	st := h.state(t)
	assert.Equal(t, KindWizard, st.Kind)
	assert.Equal(t, 1, st.Step)
	assert.Equal(t, "Анна", st.Draft.Name)
}

func TestMachine_UnknownIdleInput(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, unknownInputText, h.last(t, text("что тут")))
	assert.Equal(t, unknownInputText, h.last(t, callback("", "")))
}

func TestMachine_UnparsedInputSkipsStateLogic(t *testing.T) {
	t.Run("wizard", func(t *testing.T) {
		h := newHarness(t)
		h.send(t, callback(bot.ActionCreateManual, ""))
		h.send(t, text("Анна"))
		h.send(t, text("23"))
		before := h.state(t)
		require.Equal(t, 2, before.Step)

		for _, ev := range []bot.Event{
			{CallbackID: "cb-stale", Text: "old_menu_button_payload"},
			callback(bot.ActionUnknown, "old_menu_button_payload"),
			command(bot.ActionUnknown, "foo"),
		} {
			assert.Equal(t, unknownInputText, h.last(t, ev))
		}
		assert.Equal(t, before, h.state(t))
		assert.Empty(t, h.state(t).Draft.Personality)
	})

	t.Run("chat", func(t *testing.T) {
		h := newHarness(t)
		p := h.createPersona(t)
		h.send(t, command(bot.ActionChat, ""))
		stored := len(h.messages.msgs)

		for _, ev := range []bot.Event{
			{CallbackID: "cb-stale", Text: "buy_plan_"},
			callback(bot.ActionUnknown, "buy_plan_"),
			command(bot.ActionUnknown, "foo"),
		} {
			assert.Equal(t, unknownInputText, h.last(t, ev))
		}
		assert.Equal(t, chatting(p.ID), h.state(t))
		assert.Len(t, h.messages.msgs, stored)
	})
}

func TestMachine_SuggestedAndRandomProfiles(t *testing.T) {
	h := newHarness(t)

	h.send(t, callback(bot.ActionCreateAI, ""))
	assert.Equal(t, KindPreferences, h.state(t).Kind)
	assert.Contains(t, h.last(t, text("коротко")), "минимум 10 символов")
	assert.Equal(t, KindIdle, h.state(t).Kind)

	h.send(t, callback(bot.ActionCreateAI, ""))
	replies := h.send(t, text("Веселая блондинка 25 лет"))
	require.Len(t, replies, 2)
	assert.Equal(t, preferencesBusyText, replies[0].Text)
	assert.Contains(t, replies[1].Text, "Мария")

	replies = h.send(t, callback(bot.ActionCreateRandom, ""))
	require.Len(t, replies, 2)
	assert.True(t, replies[0].Alert)
	assert.Equal(t, profileExistsText, replies[1].Text)

	require.NoError(t, h.personas.DeactivatePersona(context.Background(), 1, h.userID()))
	got := h.last(t, callback(bot.ActionCreateRandom, ""))
	assert.Contains(t, got, "Случайный профиль готов")
	assert.Contains(t, got, llm.DefaultProfile().Name)
}

func TestMachine_EditField(t *testing.T) {
	h := newHarness(t)
	h.createPersona(t)

	assert.Contains(t, h.last(t, callback(bot.ActionEditField, "age")), "Редактирование возраста")
	assert.Equal(t, editing(models.FieldAge), h.state(t))

	assert.Contains(t, h.last(t, text("99")), "корректный возраст")
	assert.Equal(t, KindEditing, h.state(t).Kind)

	replies := h.send(t, text("30"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Возраст изменен на: 30 лет")
	assert.Equal(t, bot.ProfileEditKeyboard(), replies[0].Keyboard)
	assert.Equal(t, KindIdle, h.state(t).Kind)

	h.send(t, callback(bot.ActionEditField, "communication_style"))
	assert.Contains(t, h.last(t, text("игриво")), "Стиль общения изменен")

	p, err := h.personas.ActivePersona(context.Background(), h.userID())
	require.NoError(t, err)
	assert.Equal(t, 30, p.Age)
	assert.Equal(t, "игриво", p.CommunicationStyle)

	replies = h.send(t, callback(bot.ActionEditField, "password"))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].Alert)
	assert.Equal(t, KindIdle, h.state(t).Kind)
}

func TestMachine_DeleteProfileTwice(t *testing.T) {
	h := newHarness(t)
	h.createPersona(t)

	assert.Equal(t, deleteConfirmText, h.last(t, callback(bot.ActionDeleteProfile, "")))
	assert.Equal(t, deletedText, h.last(t, callback(bot.ActionConfirmDelete, "")))

	replies := h.send(t, callback(bot.ActionConfirmDelete, ""))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].Alert)
	assert.Equal(t, profileNotFoundText, replies[0].Text)
}

func TestMachine_ChatFlow(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, noPersonaText, h.last(t, command(bot.ActionChat, "")))
	assert.Equal(t, KindIdle, h.state(t).Kind)

	p := h.createPersona(t)
	intro := h.last(t, command(bot.ActionChat, ""))
	assert.Contains(t, intro, "Общение с Анна")
	assert.Contains(t, intro, "Меня зовут Анна")
	assert.Equal(t, chatting(p.ID), h.state(t))

	assert.Equal(t, "Ответ на: Привет", h.last(t, text("Привет")))
	assert.Equal(t, conversation.DeflectionText, h.last(t, text("поговорим про смерть")))

	h.gen.err = llm.ErrBackendUnavailable
	assert.Equal(t, conversation.UnavailableText, h.last(t, text("Ты тут?")))
	assert.Equal(t, chatting(p.ID), h.state(t))

	stats, err := h.messages.ConversationStats(context.Background(), h.userID(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalMessages)
	assert.Contains(t, h.last(t, callback(bot.ActionStats, "")), "Всего сообщений: 7")

	again := h.last(t, callback(bot.ActionStartChat, ""))
	assert.Contains(t, again, "рада тебя снова видеть")
	assert.Contains(t, again, "Сообщений в истории: 7")

	assert.Equal(t, chatStoppedText, h.last(t, command(bot.ActionStop, "")))
	assert.Equal(t, KindIdle, h.state(t).Kind)
	assert.Equal(t, unknownInputText, h.last(t, text("Привет")))
}

func TestMachine_ChatPersonaReplaced(t *testing.T) {
	h := newHarness(t)
	h.createPersona(t)
	h.send(t, command(bot.ActionChat, ""))
	h.createPersona(t)

	assert.Equal(t, chatLostText, h.last(t, text("Привет")))
	assert.Equal(t, KindIdle, h.state(t).Kind)
}

func TestMachine_ClearHistory(t *testing.T) {
	h := newHarness(t)

	replies := h.send(t, callback(bot.ActionConfirmClear, ""))
	require.Len(t, replies, 1)
	assert.True(t, replies[0].Alert)

	p := h.createPersona(t)
	h.send(t, command(bot.ActionChat, ""))
	h.send(t, text("Привет"))

	assert.Equal(t, clearConfirmText, h.last(t, callback(bot.ActionClearHistory, "")))
	assert.Equal(t, clearAbortedText, h.last(t, callback(bot.ActionAbortClear, "")))
	assert.Equal(t, historyClearedText(3), h.last(t, callback(bot.ActionConfirmClear, "")))

	stats, err := h.messages.ConversationStats(context.Background(), h.userID(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
	assert.Equal(t, chatting(p.ID), h.state(t))
}

func testPlans() []models.Plan {
	plans := models.DefaultPlans()
	for i := range plans {
		plans[i].ID = int64(i + 1)
	}
	return plans
}

func TestMachine_PurchaseFlow(t *testing.T) {
	h := newHarness(t)

	replies := h.send(t, callback(bot.ActionViewPlans, ""))
	require.Len(t, replies, 1)
	assert.Equal(t, alert(noPlansText), replies[0])

	h.payments.plans = testPlans()
	got := h.last(t, callback(bot.ActionViewPlans, ""))
	assert.Contains(t, got, "Выберите план подписки")
	assert.Contains(t, got, "Годовая подписка")

	replies = h.send(t, callback(bot.ActionBuyPlan, "2"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Подробности плана")
	assert.Equal(t, bot.PlanDetailsKeyboard(2), replies[0].Keyboard)

	replies = h.send(t, callback(bot.ActionConfirmBuyPlan, "9"))
	assert.Equal(t, []bot.Reply{alert(planNotFoundText)}, replies)

	replies = h.send(t, callback(bot.ActionConfirmBuyPlan, "2"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Оплата подписки")
	assert.Equal(t, bot.PaymentKeyboard("https://yoomoney.ru/checkout/pay-1"), replies[0].Keyboard)
	assert.Equal(t, awaitingPayment("pay-1", "https://yoomoney.ru/checkout/pay-1"), h.state(t))

	assert.Equal(t, awaitingPaymentText, h.last(t, text("ну что там")))

	h.payments.result = payment.ResultPending
	assert.Equal(t, []bot.Reply{alert(paymentPendingText)}, h.send(t, callback(bot.ActionCheckPayment, "")))
	assert.Equal(t, KindAwaitingPayment, h.state(t).Kind)

	h.payments.result = payment.ResultActivated
	assert.Equal(t, []bot.Reply{alert(paymentDoneText)}, h.send(t, callback(bot.ActionCheckPayment, "")))
	assert.Equal(t, KindIdle, h.state(t).Kind)
	assert.Equal(t, []string{"pay-1", "pay-1"}, h.payments.checked)

	assert.Equal(t, []bot.Reply{alert(noPendingText)}, h.send(t, callback(bot.ActionCheckPayment, "")))
}

func TestMachine_PurchaseFromWizard(t *testing.T) {
	h := newHarness(t)
	h.payments.plans = testPlans()
	h.send(t, callback(bot.ActionCreateManual, ""))

	h.send(t, callback(bot.ActionConfirmBuyPlan, "1"))
	assert.Equal(t, KindAwaitingPayment, h.state(t).Kind)

	assert.Equal(t, paymentCanceledText, h.last(t, callback(bot.ActionCancelPayment, "")))
	assert.Equal(t, KindIdle, h.state(t).Kind)
}

func TestMachine_ChargeFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.payments.plans = testPlans()
	h.payments.chargeErr = errors.New("provider down")

	replies := h.send(t, callback(bot.ActionConfirmBuyPlan, "1"))
	assert.Equal(t, []bot.Reply{alert(chargeErrorText)}, replies)
	assert.Equal(t, KindIdle, h.state(t).Kind)
}

func TestMachine_CheckPaymentOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result payment.Result
		err    error
		want   string
	}{
		{"cancelled at provider", payment.ResultCancelled, nil, paymentFailedText},
		{"unknown payment", "", payment.ErrPaymentNotFound, noPendingText},
		{"settled concurrently", payment.ResultDuplicate, nil, paymentDoneText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.payments.plans = testPlans()
			h.send(t, callback(bot.ActionConfirmBuyPlan, "1"))

			h.payments.result, h.payments.checkErr = tt.result, tt.err
			assert.Equal(t, tt.want, h.last(t, callback(bot.ActionCheckPayment, "")))
			assert.Equal(t, KindIdle, h.state(t).Kind)
		})
	}
}

func TestMachine_CancelSubscriptionIsIdempotent(t *testing.T) {
	h := newHarness(t)

	replies := h.send(t, callback(bot.ActionConfirmSubCancel, ""))
	assert.Equal(t, []bot.Reply{alert(noActiveSubText)}, replies)

	h.send(t, command(bot.ActionStart, ""))
	assert.Equal(t, subCancelAskText, h.last(t, callback(bot.ActionCancelSubscription, "")))
	assert.Equal(t, subCancelledText, h.last(t, callback(bot.ActionConfirmSubCancel, "")))
	assert.Equal(t, subCancelledText, h.last(t, callback(bot.ActionConfirmSubCancel, "")))

	subs := h.subs.all(h.userID())
	require.Len(t, subs, 1)
	assert.Equal(t, models.StatusCancelled, subs[0].Status)

	info := h.last(t, command(bot.ActionSubscription, ""))
	assert.Contains(t, info, "доступ сохраняется до окончания")
}

func TestMachine_Admin(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, noRightsText, h.last(t, command(bot.ActionAdminRateLimit, "")))
	assert.Zero(t, h.notif.sweeps)

	h.username = "boss"
	assert.Contains(t, h.last(t, command(bot.ActionAdminNotifications, "")), "Статус системы уведомлений")

	replies := h.send(t, command(bot.ActionAdminCheckNotifications, ""))
	require.Len(t, replies, 2)
	assert.Equal(t, sweepStartedText, replies[0].Text)
	assert.Contains(t, replies[1].Text, "Предупреждений об истечении: 2")
	assert.Equal(t, 1, h.notif.sweeps)

	assert.Equal(t, resetUsageText, h.last(t, command(bot.ActionAdminResetLimit, "abc")))
	assert.Equal(t, limitResetText(555), h.last(t, command(bot.ActionAdminResetLimit, " 555 ")))
	assert.Equal(t, []int64{555}, h.limits.reset)

	assert.Contains(t, h.last(t, command(bot.ActionAdminRateLimit, "")), "Забанено: 1")
}

func TestMachine_DispatchErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	h.username = "boss"
	h.send(t, callback(bot.ActionCreateManual, ""))

	h.limits.err = errStorage
	ev := command(bot.ActionAdminResetLimit, "7")
	ev.From = models.Identity{TelegramID: testTelegramID, Username: "boss"}
	_, err := h.m.Dispatch(context.Background(), &pipeline.Request{Event: ev, User: &models.User{ID: h.userID()}})
	assert.ErrorIs(t, err, errStorage)
	assert.Equal(t, KindWizard, h.state(t).Kind)
}

func TestMachine_Classify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	from := models.Identity{TelegramID: testTelegramID}

	tests := []struct {
		name  string
		state State
		ev    bot.Event
		want  pipeline.Class
	}{
		{"idle text", idle(), text("привет"), pipeline.Class{RateLimited: true}},
		{"chat text", chatting(1), text("привет"), pipeline.Class{Privileged: true, RateLimited: true}},
		{"wizard text", wizard(2, persona.Draft{}), text("добрая"), pipeline.Class{Privileged: true, RateLimited: true}},
		{"payment text", awaitingPayment("p", "u"), text("ну"), pipeline.Class{RateLimited: true}},
		{"chat command", idle(), command(bot.ActionChat, ""), pipeline.Class{Privileged: true}},
		{"help command", chatting(1), command(bot.ActionHelp, ""), pipeline.Class{}},
		{"create callback", idle(), callback(bot.ActionCreateManual, ""), pipeline.Class{Privileged: true, RateLimited: true}},
		{"plans callback", idle(), callback(bot.ActionViewPlans, ""), pipeline.Class{RateLimited: true}},
		{"admin command", idle(), command(bot.ActionAdminRateLimit, ""), pipeline.Class{}},
		{"stale callback in chat", chatting(1), callback(bot.ActionUnknown, "old"), pipeline.Class{RateLimited: true}},
		{"unknown command in wizard", wizard(2, persona.Draft{}), command(bot.ActionUnknown, "foo"), pipeline.Class{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, h.store.Save(ctx, testTelegramID, tt.state))
			tt.ev.From = from
			assert.Equal(t, tt.want, h.m.Classify(ctx, tt.ev))
		})
	}
}

func TestMachine_ClassifyStateUnavailable(t *testing.T) {
	store, mr := setupStore(t)
	m := New(Deps{}, store, clock.NewFake(time.Now()), Config{}, newNoopLogger())
	mr.Close()

	ev := text("привет")
	ev.From = models.Identity{TelegramID: testTelegramID}
	assert.Equal(t, pipeline.Class{RateLimited: true}, m.Classify(context.Background(), ev))
}

func TestStore(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	st, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, idle(), st)

	require.NoError(t, store.Save(ctx, 1, chatting(5)))
	assert.Equal(t, stateTTL, mr.TTL(stateKey(1)))
	st, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, chatting(5), st)

	require.NoError(t, store.Save(ctx, 1, idle()))
	assert.False(t, mr.Exists(stateKey(1)))

	require.NoError(t, store.Save(ctx, 1, chatting(5)))
	mr.FastForward(stateTTL)
	st, err = store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, KindIdle, st.Kind)
}

type recordingSender struct {
	sent []bot.Reply
}

func (s *recordingSender) Send(_ context.Context, _ int64, reply bot.Reply) error {
	s.sent = append(s.sent, reply)
	return nil
}

func TestPaymentNotifier(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	out := &recordingSender{}
	n := NewPaymentNotifier(store, out, newNoopLogger())

	require.NoError(t, store.Save(ctx, 1, awaitingPayment("pay-1", "u")))
	require.NoError(t, store.Save(ctx, 2, chatting(3)))

	require.NoError(t, n.Send(ctx, 1, bot.Text("оплачено")))
	require.NoError(t, n.Send(ctx, 2, bot.Text("оплачено")))

	st, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, KindIdle, st.Kind)
	st, err = store.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, chatting(3), st)
	assert.Len(t, out.sent, 2)
}
