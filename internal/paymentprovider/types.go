package paymentprovider

import (
	"fmt"
	"time"
)

// Статусы платежа в ЮKassa.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Amount денежная сумма в формате ЮKassa, например "299.00".
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// RubAmount сумма в целых рублях.
func RubAmount(rubles int) Amount {
	return Amount{Value: fmt.Sprintf("%d.00", rubles), Currency: "RUB"}
}

// Confirmation способ подтверждения платежа.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// Metadata дополнительные поля платежа. Возвращаются в вебхуке без изменений.
type Metadata struct {
	UserID     string `json:"user_id,omitempty"`
	TelegramID string `json:"telegram_id,omitempty"`
	PlanID     string `json:"plan_id,omitempty"`
}

// CreatePaymentRequest запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount       `json:"amount"`
	Confirmation Confirmation `json:"confirmation"`
	Capture      bool         `json:"capture"`
	Description  string       `json:"description,omitempty"`
	Metadata     Metadata     `json:"metadata"`
}

// PaymentObject платеж в ответах API и в теле вебхука.
type PaymentObject struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Paid         bool         `json:"paid"`
	Amount       Amount       `json:"amount"`
	Confirmation Confirmation `json:"confirmation"`
	Description  string       `json:"description,omitempty"`
	Metadata     Metadata     `json:"metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	PaidAt       *time.Time   `json:"paid_at,omitempty"`
}

// Charge созданный платеж: идентификатор и ссылка на оплату.
type Charge struct {
	ID              string
	ConfirmationURL string
}
