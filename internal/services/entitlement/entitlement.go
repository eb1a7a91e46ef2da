// Package entitlement управляет пробным периодом и платными подписками
// пользователя и отвечает на вопрос, есть ли у него доступ.
//
// Каждая операция выполняется в одной транзакции с блокировкой строки
// пользователя. Перед фиксацией все прочие действующие подписки
// пользователя закрываются, поэтому действующая запись всегда одна.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/clock"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

var (
	// ErrTrialAlreadyUsed пробный период уже был активирован.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrNotActive подписка уже истекла и не может быть отменена.
	ErrNotActive = errors.New("subscription is not active")
)

// Repository хранилище подписок.
type Repository interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockUser(ctx context.Context, userID int64) (*models.User, error)
	MarkTrialUsed(ctx context.Context, userID int64, at time.Time) (bool, error)
	ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	EntitledSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	CloseEntitlements(ctx context.Context, userID int64, now time.Time, keepID int64) (int64, error)
}

// Service сервис подписок.
type Service struct {
	repo      Repository
	clock     clock.Clock
	trialDays int
	log       *slog.Logger
}

// New создает сервис подписок.
func New(repo Repository, clk clock.Clock, cfg config.Subscription, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		clock:     clk,
		trialDays: cfg.TrialDays,
		log:       log,
	}
}

// GetActive возвращает подписку trial или active с наибольшим сроком.
// Если такой нет, возвращает nil без ошибки.
func (s *Service) GetActive(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "entitlement.GetActive"
	sub, err := s.repo.ActiveSubscription(ctx, userID, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// IsSubscribed есть ли у пользователя доступ. Отмененная подписка
// дает доступ до своего окончания.
func (s *Service) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	const op = "entitlement.IsSubscribed"
	_, err := s.repo.EntitledSubscription(ctx, userID, s.clock.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Info сводка по текущей подписке пользователя.
func (s *Service) Info(ctx context.Context, userID int64) (models.SubscriptionInfo, error) {
	const op = "entitlement.Info"
	now := s.clock.Now()
	sub, err := s.repo.EntitledSubscription(ctx, userID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return models.SubscriptionInfo{}, nil
	}
	if err != nil {
		return models.SubscriptionInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	return models.SubscriptionInfo{
		HasSubscription: true,
		Status:          sub.Status,
		EndTime:         sub.EndTime,
		DaysLeft:        sub.DaysLeft(now),
		IsTrial:         sub.IsTrial(),
		IsAutoRenewal:   sub.IsAutoRenewal,
	}, nil
}

// StartTrial активирует пробный период. Повторный вызов возвращает ErrTrialAlreadyUsed.
func (s *Service) StartTrial(ctx context.Context, user *models.User) (*models.Subscription, error) {
	const op = "entitlement.StartTrial"
	now := s.clock.Now()
	var sub *models.Subscription
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if locked.TrialUsed {
			return ErrTrialAlreadyUsed
		}
		marked, err := s.repo.MarkTrialUsed(ctx, user.ID, now)
		if err != nil {
			return err
		}
		if !marked {
			return ErrTrialAlreadyUsed
		}
		sub = &models.Subscription{
			UserID:    user.ID,
			Status:    models.StatusTrial,
			StartTime: now,
			EndTime:   now.AddDate(0, 0, s.trialDays),
		}
		return s.insert(ctx, sub, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.TrialUsed = true
	user.TrialStartDate = &now
	s.log.Info("trial started", sl.UserID(user.ID), slog.Time("end_time", sub.EndTime))
	return sub, nil
}

// CreatePaid создает новую активную подписку на срок тарифа.
func (s *Service) CreatePaid(ctx context.Context, user *models.User, plan *models.Plan, paymentRef string) (*models.Subscription, error) {
	const op = "entitlement.CreatePaid"
	now := s.clock.Now()
	sub := &models.Subscription{
		UserID:    user.ID,
		PlanID:    &plan.ID,
		Status:    models.StatusActive,
		StartTime: now,
		EndTime:   now.AddDate(0, 0, plan.DurationDays),
	}
	if paymentRef != "" {
		sub.PaymentID = &paymentRef
	}
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockUser(ctx, user.ID); err != nil {
			return err
		}
		return s.insert(ctx, sub, now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("paid subscription created", sl.UserID(user.ID), slog.Int("days", plan.DurationDays))
	return sub, nil
}

// Extend продлевает подписку на days дней. Истекшая подписка продлевается
// от текущего момента. Статус всегда становится active.
func (s *Service) Extend(ctx context.Context, sub *models.Subscription, days int) error {
	const op = "entitlement.Extend"
	now := s.clock.Now()
	updated := *sub
	if updated.EndTime.After(now) {
		updated.EndTime = updated.EndTime.AddDate(0, 0, days)
	} else {
		updated.EndTime = now.AddDate(0, 0, days)
	}
	updated.Status = models.StatusActive

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockUser(ctx, sub.UserID); err != nil {
			return err
		}
		if err := s.repo.UpdateSubscription(ctx, &updated); err != nil {
			return err
		}
		_, err := s.repo.CloseEntitlements(ctx, sub.UserID, now, sub.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	*sub = updated
	s.log.Info("subscription extended", sl.UserID(sub.UserID), slog.Int("days", days), slog.Time("end_time", sub.EndTime))
	return nil
}

// Cancel отменяет подписку. Доступ сохраняется до окончания срока.
// Повторная отмена ничего не делает.
func (s *Service) Cancel(ctx context.Context, sub *models.Subscription) error {
	const op = "entitlement.Cancel"
	switch sub.Status {
	case models.StatusCancelled:
		return nil
	case models.StatusExpired:
		return fmt.Errorf("%s: %w", op, ErrNotActive)
	}
	updated := *sub
	updated.Status = models.StatusCancelled
	updated.IsAutoRenewal = false
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockUser(ctx, sub.UserID); err != nil {
			return err
		}
		return s.repo.UpdateSubscription(ctx, &updated)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	*sub = updated
	s.log.Info("subscription cancelled", sl.UserID(sub.UserID))
	return nil
}

// ActivatePayment начисляет оплаченный тариф: продлевает текущую подписку,
// если она есть, иначе создает новую.
func (s *Service) ActivatePayment(ctx context.Context, user *models.User, plan *models.Plan, paymentRef string) (*models.Subscription, error) {
	const op = "entitlement.ActivatePayment"
	var result *models.Subscription
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockUser(ctx, user.ID); err != nil {
			return err
		}
		current, err := s.repo.EntitledSubscription(ctx, user.ID, s.clock.Now())
		if errors.Is(err, repository.ErrNotFound) {
			result, err = s.CreatePaid(ctx, user, plan, paymentRef)
			return err
		}
		if err != nil {
			return err
		}
		current.PlanID = &plan.ID
		if paymentRef != "" {
			current.PaymentID = &paymentRef
		}
		if err := s.Extend(ctx, current, plan.DurationDays); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *Service) insert(ctx context.Context, sub *models.Subscription, now time.Time) error {
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return err
	}
	closed, err := s.repo.CloseEntitlements(ctx, sub.UserID, now, sub.ID)
	if err != nil {
		return err
	}
	if closed > 0 {
		s.log.Info("previous subscriptions closed", sl.UserID(sub.UserID), slog.Int64("count", closed))
	}
	return nil
}
