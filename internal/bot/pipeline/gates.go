package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/ratelimiter"
)

// Users регистрация пользователей.
type Users interface {
	UpsertUser(ctx context.Context, id models.Identity) (*models.User, error)
}

// Entitlements проверка доступа.
type Entitlements interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// Limiter лимит сообщений.
type Limiter interface {
	Take(ctx context.Context, userID int64) ratelimiter.Decision
}

// IdentityGate находит или создает пользователя и обновляет данные профиля
// Telegram при каждом обращении.
type IdentityGate struct {
	users Users
}

// NewIdentityGate создает ворота identity.
func NewIdentityGate(users Users) *IdentityGate {
	return &IdentityGate{users: users}
}

func (g *IdentityGate) Name() string { return "identity" }

func (g *IdentityGate) Check(ctx context.Context, req *Request) (Outcome, error) {
	user, err := g.users.UpsertUser(ctx, req.Event.From)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert user: %w", err)
	}
	req.User = user
	return Proceed(), nil
}

// EntitlementGate пропускает привилегированные действия только при
// действующей подписке.
type EntitlementGate struct {
	entitlements Entitlements
}

// NewEntitlementGate создает ворота entitlement.
func NewEntitlementGate(ent Entitlements) *EntitlementGate {
	return &EntitlementGate{entitlements: ent}
}

func (g *EntitlementGate) Name() string { return "entitlement" }

func (g *EntitlementGate) Check(ctx context.Context, req *Request) (Outcome, error) {
	if !req.Class.Privileged {
		return Proceed(), nil
	}
	ok, err := g.entitlements.IsSubscribed(ctx, req.User.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check subscription: %w", err)
	}
	if !ok {
		return Reject(SubscriptionRequiredReply(req.Event.IsCallback())), nil
	}
	return Proceed(), nil
}

// RateLimitGate расходует лимит сообщений. Бан останавливает обработку,
// предупреждение отправляется вместе с ответом.
type RateLimitGate struct {
	limiter Limiter
	log     *slog.Logger
}

// NewRateLimitGate создает ворота rate limit.
func NewRateLimitGate(limiter Limiter, log *slog.Logger) *RateLimitGate {
	return &RateLimitGate{limiter: limiter, log: log}
}

func (g *RateLimitGate) Name() string { return "rate_limit" }

func (g *RateLimitGate) Check(ctx context.Context, req *Request) (Outcome, error) {
	if !req.Class.RateLimited {
		return Proceed(), nil
	}
	d := g.limiter.Take(ctx, req.Event.From.TelegramID)
	callback := req.Event.IsCallback()
	switch {
	case d.FailOpen:
		metrics.RateLimitDecisions.WithLabelValues("fail_open").Inc()
	case !d.Allowed:
		metrics.RateLimitDecisions.WithLabelValues("banned").Inc()
		g.log.Info("rate limited",
			sl.TelegramID(req.Event.From.TelegramID),
			slog.Int("ban_seconds", d.BanSeconds()),
		)
		return Reject(BannedReply(d.BanSeconds(), callback)), nil
	case d.Warn:
		metrics.RateLimitDecisions.WithLabelValues("warned").Inc()
		req.Notices = append(req.Notices, WarningReply(d.Remaining, callback))
	default:
		metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
	}
	return Proceed(), nil
}

var (
	_ Gate = (*IdentityGate)(nil)
	_ Gate = (*EntitlementGate)(nil)
	_ Gate = (*RateLimitGate)(nil)
)
