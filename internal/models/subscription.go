package models

import "time"

// SubscriptionStatus статус подписки.
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription период доступа пользователя [StartTime, EndTime).
// Записи не удаляются, история хранится целиком.
type Subscription struct {
	ID            int64
	UserID        int64
	PlanID        *int64
	Status        SubscriptionStatus
	StartTime     time.Time
	EndTime       time.Time
	IsAutoRenewal bool
	PaymentID     *string // Внешний идентификатор платежа
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTrial пробная ли подписка.
func (s *Subscription) IsTrial() bool {
	return s.Status == StatusTrial
}

// Entitles дает ли подписка доступ в момент now. Отмененная подписка
// действует до естественного окончания.
func (s *Subscription) Entitles(now time.Time) bool {
	switch s.Status {
	case StatusTrial, StatusActive, StatusCancelled:
		return s.EndTime.After(now)
	default:
		return false
	}
}

// DaysLeft число полных дней до окончания, не меньше нуля.
func (s *Subscription) DaysLeft(now time.Time) int {
	if !s.EndTime.After(now) {
		return 0
	}
	return int(s.EndTime.Sub(now) / (24 * time.Hour))
}

// SubscriptionInfo сводка для экрана подписки.
type SubscriptionInfo struct {
	HasSubscription bool
	Status          SubscriptionStatus
	EndTime         time.Time
	DaysLeft        int
	IsTrial         bool
	IsAutoRenewal   bool
}

// ExpiryCandidate подписка вместе с владельцем, отобранная для уведомления.
type ExpiryCandidate struct {
	Subscription Subscription
	User         User
}
