// Package payment создает платежи в ЮKassa и применяет их результат:
// успешная оплата начисляет подписку, отмена только закрывает платеж.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/metrics"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/paymentprovider"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

// События вебхука ЮKassa.
const (
	EventSucceeded = "payment.succeeded"
	EventCanceled  = "payment.canceled"
)

const (
	plansCacheKey = "plans"
	plansTTL      = 10 * time.Minute
)

var (
	// ErrPaymentNotFound платеж с таким внешним идентификатором неизвестен.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPlanNotFound тариф не найден или неактивен.
	ErrPlanNotFound = errors.New("plan not found")
)

// Result итог обработки уведомления о платеже.
type Result string

const (
	ResultActivated Result = "activated"
	ResultCancelled Result = "cancelled"
	ResultDuplicate Result = "duplicate"
	ResultPending   Result = "pending"
	ResultIgnored   Result = "ignored"
)

// Repository хранилище платежей и тарифов.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetPlan(ctx context.Context, planID int64) (*models.Plan, error)
	GetPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, externalID string, to models.PaymentStatus, paidAt *time.Time) (*models.Payment, bool, error)
}

// Entitlements начисление подписки за оплату.
type Entitlements interface {
	ActivatePayment(ctx context.Context, user *models.User, plan *models.Plan, paymentRef string) (*models.Subscription, error)
}

// Provider платежный провайдер.
type Provider interface {
	CreatePayment(ctx context.Context, r paymentprovider.ChargeRequest) (*paymentprovider.Charge, error)
	GetPayment(ctx context.Context, id string) (*paymentprovider.PaymentObject, error)
}

// Notifier отправляет пользователю сообщение об активации.
type Notifier interface {
	Send(ctx context.Context, chatID int64, reply bot.Reply) error
}

// WebhookEvent тело уведомления ЮKassa.
type WebhookEvent struct {
	Type   string                        `json:"type"`
	Event  string                        `json:"event"`
	Object paymentprovider.PaymentObject `json:"object"`
}

// Service сервис платежей.
type Service struct {
	repo         Repository
	entitlements Entitlements
	provider     Provider
	notifier     Notifier
	plans        *cache.Cache
	clock        clock.Clock
	log          *slog.Logger
}

// New создает сервис платежей.
func New(repo Repository, ent Entitlements, provider Provider, notifier Notifier, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		entitlements: ent,
		provider:     provider,
		notifier:     notifier,
		plans:        cache.New(plansTTL, 2*plansTTL),
		clock:        clk,
		log:          log,
	}
}

// Plans активные тарифы. Каталог кешируется в памяти процесса.
func (s *Service) Plans(ctx context.Context) ([]models.Plan, error) {
	const op = "payment.Plans"
	if x, found := s.plans.Get(plansCacheKey); found {
		return x.([]models.Plan), nil
	}
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.plans.Set(plansCacheKey, plans, cache.DefaultExpiration)
	return plans, nil
}

// Plan тариф по идентификатору.
func (s *Service) Plan(ctx context.Context, planID int64) (*models.Plan, error) {
	const op = "payment.Plan"
	plans, err := s.Plans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range plans {
		if plans[i].ID == planID {
			p := plans[i]
			return &p, nil
		}
	}
	p, err := s.repo.GetPlan(ctx, planID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CreateCharge создает платеж у провайдера и сохраняет его в статусе pending.
func (s *Service) CreateCharge(ctx context.Context, user *models.User, plan *models.Plan) (*models.Payment, error) {
	const op = "payment.CreateCharge"
	description := "Подписка: " + plan.Name
	charge, err := s.provider.CreatePayment(ctx, paymentprovider.ChargeRequest{
		AmountRub:   plan.Price,
		Description: description,
		UserID:      user.ID,
		TelegramID:  user.TelegramID,
		PlanID:      plan.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	currency := plan.Currency
	if currency == "" {
		currency = "RUB"
	}
	planID := plan.ID
	p := &models.Payment{
		UserID:          user.ID,
		PlanID:          &planID,
		ExternalID:      charge.ID,
		Amount:          plan.Price,
		Currency:        currency,
		Status:          models.PaymentPending,
		Description:     description,
		ConfirmationURL: charge.ConfirmationURL,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("payment created",
		sl.UserID(user.ID),
		slog.String("payment_id", charge.ID),
		slog.Int("amount", plan.Price),
	)
	return p, nil
}

// HandleWebhook применяет уведомление провайдера. Повторная доставка того же
// события ничего не меняет и возвращает ResultDuplicate.
func (s *Service) HandleWebhook(ctx context.Context, ev WebhookEvent) (Result, error) {
	const op = "payment.HandleWebhook"
	var (
		result Result
		err    error
	)
	switch ev.Event {
	case EventSucceeded:
		result, err = s.settle(ctx, ev.Object, models.PaymentSucceeded)
	case EventCanceled:
		result, err = s.settle(ctx, ev.Object, models.PaymentCancelled)
	default:
		s.log.Info("webhook event ignored", slog.String("event", ev.Event))
		result = ResultIgnored
	}

	label := string(result)
	if err != nil {
		label = "error"
	}
	metrics.WebhookEvents.WithLabelValues(ev.Event, label).Inc()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CheckPayment запрашивает у провайдера статус платежа пользователя и
// применяет его так же, как вебхук.
func (s *Service) CheckPayment(ctx context.Context, userID int64, externalID string) (Result, error) {
	const op = "payment.CheckPayment"
	p, err := s.repo.GetPaymentByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.UserID != userID) {
		return "", fmt.Errorf("%s: %w", op, ErrPaymentNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if p.Status.IsTerminal() {
		if p.Status == models.PaymentSucceeded {
			return ResultActivated, nil
		}
		return ResultCancelled, nil
	}

	obj, err := s.provider.GetPayment(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	var result Result
	switch obj.Status {
	case paymentprovider.StatusSucceeded:
		result, err = s.settle(ctx, *obj, models.PaymentSucceeded)
	case paymentprovider.StatusCanceled:
		result, err = s.settle(ctx, *obj, models.PaymentCancelled)
	default:
		return ResultPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// settle переводит платеж в конечный статус и при успехе начисляет подписку
// в той же транзакции. Уведомление уходит после фиксации.
func (s *Service) settle(ctx context.Context, obj paymentprovider.PaymentObject, to models.PaymentStatus) (Result, error) {
	var (
		result Result
		user   *models.User
		plan   *models.Plan
		sub    *models.Subscription
	)
	paidAt := obj.PaidAt
	if to == models.PaymentSucceeded && paidAt == nil {
		now := s.clock.Now()
		paidAt = &now
	}
	if to != models.PaymentSucceeded {
		paidAt = nil
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		p, changed, err := s.repo.TransitionPayment(ctx, obj.ID, to, paidAt)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		if !changed {
			result = ResultDuplicate
			return nil
		}
		if to != models.PaymentSucceeded {
			result = ResultCancelled
			return nil
		}

		user, err = s.repo.GetUserByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		plan, err = s.resolvePlan(ctx, p.PlanID, obj.Metadata.PlanID)
		if err != nil {
			return err
		}
		sub, err = s.entitlements.ActivatePayment(ctx, user, plan, obj.ID)
		if err != nil {
			return err
		}
		result = ResultActivated
		return nil
	})
	if err != nil {
		return "", err
	}

	log := s.log.With(slog.String("payment_id", obj.ID), slog.String("result", string(result)))
	if result != ResultActivated {
		log.Info("payment settled")
		return result, nil
	}
	log.Info("subscription activated", sl.UserID(user.ID), slog.String("plan", plan.Name))
	if err := s.notifier.Send(ctx, user.TelegramID, ActivationReply(plan, sub)); err != nil {
		log.Warn("failed to send activation notice", sl.TelegramID(user.TelegramID), sl.Err(err))
	}
	return result, nil
}

// resolvePlan выбирает тариф платежа: сохраненный, затем из metadata,
// иначе месячный.
func (s *Service) resolvePlan(ctx context.Context, stored *int64, meta string) (*models.Plan, error) {
	if stored != nil {
		if p, err := s.Plan(ctx, *stored); err == nil {
			return p, nil
		}
	}
	if id, err := strconv.ParseInt(meta, 10, 64); err == nil {
		if p, err := s.Plan(ctx, id); err == nil {
			return p, nil
		}
	}
	p, err := s.repo.GetPlanByType(ctx, models.PlanMonthly)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	return p, err
}
