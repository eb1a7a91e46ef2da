// Package models содержит доменные структуры бота: пользователя, подписки,
// тарифы, платежи, профили девушек и сообщения переписки.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User пользователь Telegram, зарегистрированный при первом обращении.
type User struct {
	ID                    int64
	TelegramID            int64 // Неизменяемый идентификатор в Telegram
	Username              string
	FirstName             string
	LastName              string
	LanguageCode          string
	IsActive              bool
	TrialUsed             bool // Выставляется один раз и больше не сбрасывается
	TrialStartDate        *time.Time
	LastExpiryNotifiedAt  *time.Time
	LastExpiredNotifiedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Identity изменяемые данные профиля Telegram, обновляются при каждом обращении.
type Identity struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// DisplayName имя для обращения к пользователю.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "друг"
}
