package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/bot/pipeline"
	"github.com/magabrotheeeer/companion-bot/internal/cache"
	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
	"github.com/magabrotheeeer/companion-bot/internal/services/conversation"
	"github.com/magabrotheeeer/companion-bot/internal/services/entitlement"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

type recordingResponder struct {
	mu      sync.Mutex
	sent    []bot.Reply
	answers []bot.Reply
}

func (r *recordingResponder) Send(_ context.Context, _ int64, reply bot.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, reply)
	return nil
}

func (r *recordingResponder) Answer(_ context.Context, _ string, reply bot.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, reply)
	return nil
}

// drain ответы, отправленные с прошлого вызова.
func (r *recordingResponder) drain() []bot.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func TestScenario_TrialChatBanRecovery(t *testing.T) {
	ctx := context.Background()
	log := newNoopLogger()
	client, _ := setupRedis(t)
	clk := clock.NewFake(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC))

	subs := newMemSubscriptions()
	personas := &memPersonas{}
	ent := entitlement.New(subs, clk, config.Subscription{TrialDays: 7}, log)
	limiter := ratelimiter.New(client, config.RateLimit{
		Enabled:           true,
		MessagesPerWindow: 60,
		Window:            60 * time.Second,
		BanDuration:       300 * time.Second,
		WarningThreshold:  50,
	}, clk, log)

	m := New(Deps{
		Entitlements:  ent,
		Personas:      persona.New(personas, stubSuggester{}, log),
		Conversations: conversation.New(&memMessages{}, &stubGenerator{}, log),
		Payments:      &stubPayments{},
		Notifications: &stubNotifications{},
		Limits:        limiter,
	}, NewStore(&cache.Cache{Db: client}), clk, Config{TrialDays: 7}, log)

	out := &recordingResponder{}
	p := pipeline.New(m, out, 1, log,
		pipeline.NewIdentityGate(subs),
		pipeline.NewEntitlementGate(ent),
		pipeline.NewRateLimitGate(limiter, log),
	)

	from := models.Identity{TelegramID: testTelegramID, Username: "ivan", FirstName: "Иван"}
	handle := func(ev bot.Event) []bot.Reply {
		ev.ChatID, ev.From = testTelegramID, from
		p.Handle(ctx, ev)
		return out.drain()
	}

	// Без подписки и профиля общение недоступно.
	replies := handle(command(bot.ActionChat, ""))
	require.Len(t, replies, 1)
	assert.Equal(t, pipeline.SubscriptionRequiredReply(false), replies[0])

	replies = handle(command(bot.ActionStart, ""))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Добрый вечер!")
	assert.Contains(t, replies[0].Text, "Пробный период активирован")

	ok, err := ent.IsSubscribed(ctx, testTelegramID*10)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, personas.CreatePersona(ctx, &models.Persona{UserID: testTelegramID * 10, Name: "Анна", Age: 23}))
	replies = handle(command(bot.ActionChat, ""))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Общение с Анна")

	var answered, warnings int
	for i := 1; i <= 60; i++ {
		msg := fmt.Sprintf("сообщение %d", i)
		for _, r := range handle(text(msg)) {
			switch {
			case r.Text == "Ответ на: "+msg:
				answered++
			case strings.Contains(r.Text, "Внимание"):
				warnings++
			default:
				t.Fatalf("unexpected reply to message %d: %q", i, r.Text)
			}
		}
		clk.Advance(500 * time.Millisecond)
	}
	assert.Equal(t, 60, answered)
	assert.Equal(t, 1, warnings)

	replies = handle(text("сообщение 61"))
	require.Len(t, replies, 1)
	assert.Equal(t, pipeline.BannedReply(300, false), replies[0])

	// Команды лимит не расходуют, но бан для текста продолжается.
	replies = handle(command(bot.ActionHelp, ""))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Помощь")
	replies = handle(text("еще раз"))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Слишком много сообщений")

	clk.Advance(300 * time.Second)
	replies = handle(text("я вернулся"))
	require.Len(t, replies, 1)
	assert.Equal(t, "Ответ на: я вернулся", replies[0].Text)

	st, err := NewStore(&cache.Cache{Db: client}).Load(ctx, testTelegramID)
	require.NoError(t, err)
	assert.Equal(t, KindChatting, st.Kind)
}

func TestScenario_CallbackAnsweredOnce(t *testing.T) {
	ctx := context.Background()
	log := newNoopLogger()
	h := newHarness(t)
	subs := h.subs

	out := &recordingResponder{}
	p := pipeline.New(h.m, out, 1, log, pipeline.NewIdentityGate(subs))

	ev := callback(bot.ActionConfirmBuyPlan, "42")
	ev.ChatID, ev.From = testTelegramID, models.Identity{TelegramID: testTelegramID}
	p.Handle(ctx, ev)

	require.Len(t, out.answers, 1)
	assert.Equal(t, planNotFoundText, out.answers[0].Text)
	assert.Empty(t, out.sent)

	ev = callback(bot.ActionDeleteProfile, "")
	ev.ChatID, ev.From = testTelegramID, models.Identity{TelegramID: testTelegramID}
	p.Handle(ctx, ev)

	require.Len(t, out.answers, 2)
	assert.Empty(t, out.answers[1].Text)
	require.Len(t, out.sent, 1)
	assert.Equal(t, deleteConfirmText, out.sent[0].Text)
}
