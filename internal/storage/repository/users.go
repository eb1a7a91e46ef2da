package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const userColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	language_code, is_active, trial_used, trial_start_date, last_expiry_notified_at, last_expired_notified_at,
	created_at, updated_at`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var trialStart, expiryAt, expiredAt sql.NullTime
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.LanguageCode, &u.IsActive, &u.TrialUsed, &trialStart, &expiryAt, &expiredAt,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.TrialStartDate = nullTime(trialStart)
	u.LastExpiryNotifiedAt = nullTime(expiryAt)
	u.LastExpiredNotifiedAt = nullTime(expiredAt)
	return &u, nil
}

// UpsertUser находит пользователя по telegram_id или создает его,
// обновляя изменяемые поля профиля.
func (s *Storage) UpsertUser(ctx context.Context, id models.Identity) (*models.User, error) {
	const op = "storage.UpsertUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	lang := id.LanguageCode
	if lang == "" {
		lang = "ru"
	}

	query := `INSERT INTO users (telegram_id, username, first_name, last_name, language_code)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language_code = EXCLUDED.language_code,
			updated_at = NOW()
		RETURNING ` + userColumns
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx, query,
		id.TelegramID, id.Username, id.FirstName, id.LastName, lang))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByTelegramID возвращает пользователя по идентификатору Telegram.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByID возвращает пользователя по внутреннему идентификатору.
func (s *Storage) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUserByID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// LockUser блокирует строку пользователя до конца транзакции.
func (s *Storage) LockUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.LockUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// MarkTrialUsed выставляет trial_used. Возвращает false, если флаг уже стоял.
func (s *Storage) MarkTrialUsed(ctx context.Context, userID int64, at time.Time) (bool, error) {
	const op = "storage.MarkTrialUsed"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET trial_used = TRUE, trial_start_date = $2, updated_at = NOW()
		 WHERE id = $1 AND trial_used = FALSE`, userID, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// SetExpiryNotified сдвигает отметку предупреждения об окончании. Отметка не убывает.
func (s *Storage) SetExpiryNotified(ctx context.Context, userID int64, at time.Time) error {
	const op = "storage.SetExpiryNotified"
	return s.bumpWatermark(ctx, op, "last_expiry_notified_at", userID, at)
}

// SetExpiredNotified сдвигает отметку уведомления об истечении. Отметка не убывает.
func (s *Storage) SetExpiredNotified(ctx context.Context, userID int64, at time.Time) error {
	const op = "storage.SetExpiredNotified"
	return s.bumpWatermark(ctx, op, "last_expired_notified_at", userID, at)
}

func (s *Storage) bumpWatermark(ctx context.Context, op, column string, userID int64, at time.Time) error {
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE users SET %[1]s = GREATEST(COALESCE(%[1]s, $2), $2), updated_at = NOW()
		WHERE id = $1`, column)
	if _, err := s.conn(ctx).ExecContext(ctx, query, userID, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountUsers число зарегистрированных пользователей.
func (s *Storage) CountUsers(ctx context.Context) (int, error) {
	const op = "storage.CountUsers"
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
