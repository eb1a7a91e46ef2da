package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/companion-bot/internal/cache"
	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
	"github.com/magabrotheeeer/companion-bot/internal/services/notification"
	"github.com/magabrotheeeer/companion-bot/internal/services/payment"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	client, mr := setupRedis(t)
	return NewStore(&cache.Cache{Db: client}), mr
}

// memSubscriptions хранилище подписок в памяти.
type memSubscriptions struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	subs   []*models.Subscription
	nextID int64
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{users: make(map[int64]*models.User)}
}

func (r *memSubscriptions) UpsertUser(_ context.Context, id models.Identity) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id.TelegramID]
	if !ok {
		u = &models.User{ID: id.TelegramID * 10, TelegramID: id.TelegramID, IsActive: true}
		r.users[id.TelegramID] = u
	}
	u.Username, u.FirstName = id.Username, id.FirstName
	cp := *u
	return &cp, nil
}

func (r *memSubscriptions) byID(userID int64) *models.User {
	for _, u := range r.users {
		if u.ID == userID {
			return u
		}
	}
	return nil
}

func (r *memSubscriptions) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *memSubscriptions) LockUser(_ context.Context, userID int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID(userID)
	if u == nil {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memSubscriptions) MarkTrialUsed(_ context.Context, userID int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID(userID)
	if u.TrialUsed {
		return false, nil
	}
	u.TrialUsed = true
	u.TrialStartDate = &at
	return true, nil
}

func (r *memSubscriptions) latest(userID int64, now time.Time, statuses ...models.SubscriptionStatus) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || !s.EndTime.After(now) {
			continue
		}
		for _, st := range statuses {
			if s.Status == st && (best == nil || s.EndTime.After(best.EndTime)) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memSubscriptions) ActiveSubscription(_ context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	return r.latest(userID, now, models.StatusTrial, models.StatusActive)
}

func (r *memSubscriptions) EntitledSubscription(_ context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	return r.latest(userID, now, models.StatusTrial, models.StatusActive, models.StatusCancelled)
}

func (r *memSubscriptions) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs = append(r.subs, &cp)
	return nil
}

func (r *memSubscriptions) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == sub.ID {
			*s = *sub
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memSubscriptions) CloseEntitlements(_ context.Context, userID int64, now time.Time, keepID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.subs {
		if s.UserID == userID && s.ID != keepID && s.EndTime.After(now) && s.Status != models.StatusExpired {
			s.Status = models.StatusExpired
			s.EndTime = now
			n++
		}
	}
	return n, nil
}

func (r *memSubscriptions) all(userID int64) []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out
}

func (r *memSubscriptions) user(telegramID int64) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[telegramID]
}

// memPersonas хранилище профилей в памяти.
type memPersonas struct {
	mu     sync.Mutex
	items  []*models.Persona
	nextID int64
}

func (r *memPersonas) CreatePersona(_ context.Context, p *models.Persona) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.UserID == p.UserID {
			it.IsActive = false
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.IsActive = true
	cp := *p
	r.items = append(r.items, &cp)
	return nil
}

func (r *memPersonas) ActivePersona(_ context.Context, userID int64) (*models.Persona, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.UserID == userID && it.IsActive {
			cp := *it
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPersonas) UpdatePersonaField(_ context.Context, personaID, userID int64, field models.PersonaField, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID != personaID || it.UserID != userID {
			continue
		}
		switch field {
		case models.FieldName:
			it.Name = value.(string)
		case models.FieldAge:
			it.Age = value.(int)
		case models.FieldPersonality:
			it.Personality = value.(string)
		case models.FieldAppearance:
			it.Appearance = value.(string)
		case models.FieldInterests:
			it.Interests = value.(string)
		case models.FieldBackground:
			it.Background = value.(string)
		case models.FieldCommunicationStyle:
			it.CommunicationStyle = value.(string)
		}
		return nil
	}
	return repository.ErrNotFound
}

func (r *memPersonas) DeactivatePersona(_ context.Context, personaID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == personaID && it.UserID == userID {
			it.IsActive = false
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubSuggester struct{}

func (stubSuggester) SuggestProfile(_ context.Context, preferences, _ string) llm.ProfileSuggestion {
	if preferences == llm.RandomPreferences {
		return llm.DefaultProfile()
	}
	return llm.ProfileSuggestion{
		Name:               "Мария",
		Age:                25,
		Personality:        "Веселая и открытая",
		Appearance:         "Блондинка с голубыми глазами",
		Interests:          "танцы",
		Background:         "студентка",
		CommunicationStyle: "игриво",
	}
}

// memMessages хранилище переписки в памяти.
type memMessages struct {
	mu   sync.Mutex
	msgs []models.ConversationMessage
	next int64
}

func (r *memMessages) SaveMessage(_ context.Context, msg *models.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	msg.ID = r.next
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *memMessages) RecentMessages(_ context.Context, userID, personaID int64, limit int) ([]models.ConversationMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ConversationMessage
	for _, m := range r.msgs {
		if m.UserID == userID && m.PersonaID == personaID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memMessages) ClearHistory(_ context.Context, userID, personaID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []models.ConversationMessage
	var n int64
	for _, m := range r.msgs {
		if m.UserID == userID && m.PersonaID == personaID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.msgs = kept
	return n, nil
}

func (r *memMessages) ConversationStats(_ context.Context, userID, personaID int64) (models.ConversationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var st models.ConversationStats
	for _, m := range r.msgs {
		if m.UserID != userID || m.PersonaID != personaID {
			continue
		}
		st.TotalMessages++
		if m.Role == models.RoleUser {
			st.UserMessages++
		} else {
			st.AssistantMessages++
		}
	}
	return st, nil
}

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "Ответ на: " + req.Message, nil
}

func (g *stubGenerator) Moderate(_ context.Context, text string) bool {
	return !strings.Contains(text, "смерть")
}

// stubPayments тарифы и платежи без провайдера.
type stubPayments struct {
	mu        sync.Mutex
	plans     []models.Plan
	chargeErr error
	result    payment.Result
	checkErr  error
	charges   int
	checked   []string
}

func (p *stubPayments) Plans(context.Context) ([]models.Plan, error) {
	return p.plans, nil
}

func (p *stubPayments) Plan(_ context.Context, id int64) (*models.Plan, error) {
	for i := range p.plans {
		if p.plans[i].ID == id {
			return &p.plans[i], nil
		}
	}
	return nil, payment.ErrPlanNotFound
}

func (p *stubPayments) CreateCharge(_ context.Context, user *models.User, plan *models.Plan) (*models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chargeErr != nil {
		return nil, p.chargeErr
	}
	p.charges++
	return &models.Payment{
		UserID:          user.ID,
		PlanID:          &plan.ID,
		ExternalID:      "pay-1",
		Amount:          plan.Price,
		Status:          models.PaymentPending,
		ConfirmationURL: "https://yoomoney.ru/checkout/pay-1",
	}, nil
}

func (p *stubPayments) CheckPayment(_ context.Context, _ int64, externalID string) (payment.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = append(p.checked, externalID)
	return p.result, p.checkErr
}

type stubNotifications struct {
	sweeps int
}

func (n *stubNotifications) Info() notification.Info {
	return notification.Info{Enabled: true, CheckInterval: 6 * time.Hour, ExpiryDays: 1, Transport: "direct"}
}

func (n *stubNotifications) Sweep(context.Context, time.Time) notification.Stats {
	n.sweeps++
	return notification.Stats{ExpiryWarnings: 2, Expired: 1}
}

type stubLimits struct {
	reset []int64
	err   error
}

func (l *stubLimits) Reset(_ context.Context, userID int64) error {
	if l.err != nil {
		return l.err
	}
	l.reset = append(l.reset, userID)
	return nil
}

func (l *stubLimits) Stats(context.Context) (ratelimiter.Stats, error) {
	return ratelimiter.Stats{Enabled: true, MessagesPerWindow: 60, Window: time.Minute, BannedUsers: 1}, nil
}

var errStorage = errors.New("storage down")
