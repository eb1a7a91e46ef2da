package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const subscriptionColumns = `s.id, s.user_id, s.plan_id, s.status, s.start_time, s.end_time,
	s.is_auto_renewal, s.payment_id, s.created_at, s.updated_at`

const joinedUserColumns = `u.id, u.telegram_id, COALESCE(u.username, ''), COALESCE(u.first_name, ''),
	COALESCE(u.last_name, ''), u.language_code, u.is_active, u.trial_used, u.trial_start_date,
	u.last_expiry_notified_at, u.last_expired_notified_at, u.created_at, u.updated_at`

func scanSubscription(row scanner, extra ...any) (*models.Subscription, error) {
	var sub models.Subscription
	var planID sql.NullInt64
	var paymentID sql.NullString
	dest := append([]any{&sub.ID, &sub.UserID, &planID, &sub.Status, &sub.StartTime, &sub.EndTime,
		&sub.IsAutoRenewal, &paymentID, &sub.CreatedAt, &sub.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if planID.Valid {
		sub.PlanID = &planID.Int64
	}
	if paymentID.Valid {
		sub.PaymentID = &paymentID.String
	}
	sub.StartTime = sub.StartTime.UTC()
	sub.EndTime = sub.EndTime.UTC()
	return &sub, nil
}

// ActiveSubscription возвращает действующую подписку со статусом trial или active
// и наибольшим end_time.
func (s *Storage) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.ActiveSubscription"
	return s.latestSubscription(ctx, op, userID, now, []string{string(models.StatusTrial), string(models.StatusActive)})
}

// EntitledSubscription как ActiveSubscription, но учитывает и отмененные
// подписки, срок которых еще не вышел.
func (s *Storage) EntitledSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.EntitledSubscription"
	return s.latestSubscription(ctx, op, userID, now, []string{
		string(models.StatusTrial), string(models.StatusActive), string(models.StatusCancelled),
	})
}

func (s *Storage) latestSubscription(ctx context.Context, op string, userID int64, now time.Time, statuses []string) (*models.Subscription, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions s
		WHERE s.user_id = $1 AND s.status = ANY($2) AND s.end_time > $3
		ORDER BY s.end_time DESC, s.id DESC
		LIMIT 1`
	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx, query, userID, statuses, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CreateSubscription добавляет подписку и заполняет ее ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.CreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	query := `INSERT INTO subscriptions (user_id, plan_id, status, start_time, end_time, is_auto_renewal, payment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		sub.UserID, sub.PlanID, string(sub.Status), sub.StartTime, sub.EndTime, sub.IsAutoRenewal, sub.PaymentID,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscription сохраняет статус, срок и признаки подписки.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.UpdateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = $2, end_time = $3, is_auto_renewal = $4, plan_id = $5, payment_id = $6, updated_at = NOW()
		 WHERE id = $1`,
		sub.ID, string(sub.Status), sub.EndTime, sub.IsAutoRenewal, sub.PlanID, sub.PaymentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// CloseEntitlements закрывает в момент now все действующие подписки пользователя,
// кроме keepID. Возвращает число закрытых записей.
func (s *Storage) CloseEntitlements(ctx context.Context, userID int64, now time.Time, keepID int64) (int64, error) {
	const op = "storage.CloseEntitlements"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET status = 'expired', end_time = GREATEST(start_time, $2), updated_at = NOW()
		 WHERE user_id = $1 AND status IN ('trial', 'active', 'cancelled') AND end_time > $2 AND id <> $3`,
		userID, now, keepID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ExpiringSubscriptions подписки trial/active с окончанием в (now, until],
// владельцы которых не получали предупреждение после cooldownBefore.
func (s *Storage) ExpiringSubscriptions(ctx context.Context, now, until, cooldownBefore time.Time) ([]models.ExpiryCandidate, error) {
	const op = "storage.ExpiringSubscriptions"
	query := `SELECT ` + subscriptionColumns + `, ` + joinedUserColumns + `
		FROM subscriptions s JOIN users u ON u.id = s.user_id
		WHERE s.status IN ('trial', 'active')
		  AND s.end_time > $1 AND s.end_time <= $2
		  AND (u.last_expiry_notified_at IS NULL OR u.last_expiry_notified_at < $3)
		ORDER BY s.end_time`
	return s.candidates(ctx, op, query, now, until, cooldownBefore)
}

// ExpiredSubscriptions подписки trial/active с окончанием в (since, now],
// по которым еще не отправлено уведомление об истечении.
func (s *Storage) ExpiredSubscriptions(ctx context.Context, now, since time.Time) ([]models.ExpiryCandidate, error) {
	const op = "storage.ExpiredSubscriptions"
	query := `SELECT ` + subscriptionColumns + `, ` + joinedUserColumns + `
		FROM subscriptions s JOIN users u ON u.id = s.user_id
		WHERE s.status IN ('trial', 'active')
		  AND s.end_time > $2 AND s.end_time <= $1
		  AND (u.last_expired_notified_at IS NULL OR u.last_expired_notified_at < s.end_time)
		ORDER BY s.end_time`
	return s.candidates(ctx, op, query, now, since)
}

func (s *Storage) candidates(ctx context.Context, op, query string, args ...any) ([]models.ExpiryCandidate, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ExpiryCandidate
	for rows.Next() {
		var u models.User
		var trialStart, expiryAt, expiredAt sql.NullTime
		sub, err := scanSubscription(rows,
			&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
			&u.LanguageCode, &u.IsActive, &u.TrialUsed, &trialStart, &expiryAt, &expiredAt,
			&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		u.TrialStartDate = nullTime(trialStart)
		u.LastExpiryNotifiedAt = nullTime(expiryAt)
		u.LastExpiredNotifiedAt = nullTime(expiredAt)
		result = append(result, models.ExpiryCandidate{Subscription: *sub, User: u})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkExpired переводит подписку в expired, если ее срок вышел. Возвращает
// false, если подписка уже не trial/active.
func (s *Storage) MarkExpired(ctx context.Context, subscriptionID int64, now time.Time) (bool, error) {
	const op = "storage.MarkExpired"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE subscriptions SET status = 'expired', updated_at = NOW()
		 WHERE id = $1 AND status IN ('trial', 'active') AND end_time <= $2`, subscriptionID, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// SubscriptionCounts число подписок по статусам.
func (s *Storage) SubscriptionCounts(ctx context.Context) (map[models.SubscriptionStatus]int, error) {
	const op = "storage.SubscriptionCounts"
	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	counts := make(map[models.SubscriptionStatus]int)
	for rows.Next() {
		var st models.SubscriptionStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}
