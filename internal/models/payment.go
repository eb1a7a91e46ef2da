package models

import "time"

// PaymentStatus статус платежа.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// IsTerminal конечный ли статус.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentPending
}

// Payment платеж пользователя. ExternalID уникален и служит ключом
// идемпотентности вебхука.
type Payment struct {
	ID              int64
	UserID          int64
	PlanID          *int64
	ExternalID      string
	Amount          int
	Currency        string
	Status          PaymentStatus
	Description     string
	ConfirmationURL string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
