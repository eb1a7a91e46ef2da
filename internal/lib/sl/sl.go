// Package sl атрибуты slog, общие для всех компонентов бота: ошибка и
// идентификаторы пользователя.
package sl

import "log/slog"

// Err атрибут "error" с текстом ошибки.
//
//	log.Error("failed to save state", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// TelegramID атрибут с идентификатором пользователя в Telegram.
func TelegramID(id int64) slog.Attr {
	return slog.Int64("telegram_id", id)
}

// UserID атрибут с внутренним идентификатором пользователя.
func UserID(id int64) slog.Attr {
	return slog.Int64("user_id", id)
}
