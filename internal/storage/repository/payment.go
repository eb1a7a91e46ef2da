package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const paymentColumns = `id, user_id, plan_id, external_id, amount, currency, status, description,
	confirmation_url, paid_at, created_at, updated_at`

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	var planID sql.NullInt64
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &planID, &p.ExternalID, &p.Amount, &p.Currency, &p.Status,
		&p.Description, &p.ConfirmationURL, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if planID.Valid {
		p.PlanID = &planID.Int64
	}
	p.PaidAt = nullTime(paidAt)
	return &p, nil
}

// CreatePayment сохраняет платеж и заполняет его ID.
func (s *Storage) CreatePayment(ctx context.Context, p *models.Payment) error {
	const op = "storage.CreatePayment"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	query := `INSERT INTO payments (user_id, plan_id, external_id, amount, currency, status, description, confirmation_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		p.UserID, p.PlanID, p.ExternalID, p.Amount, p.Currency, string(p.Status), p.Description, p.ConfirmationURL,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPaymentByExternalID платеж по идентификатору провайдера.
func (s *Storage) GetPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByExternalID"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPayment(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_id = $1`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// TransitionPayment переводит платеж из pending в конечный статус.
// Если платеж уже в конечном статусе, возвращает его с changed=false.
func (s *Storage) TransitionPayment(ctx context.Context, externalID string, to models.PaymentStatus, paidAt *time.Time) (*models.Payment, bool, error) {
	const op = "storage.TransitionPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}
	p, err := scanPayment(s.conn(ctx).QueryRowContext(ctx,
		`UPDATE payments SET status = $2, paid_at = $3, updated_at = NOW()
		 WHERE external_id = $1 AND status = 'pending'
		 RETURNING `+paymentColumns, externalID, string(to), paidAt))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	existing, err := s.GetPaymentByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// LatestPendingPayment последний незавершенный платеж пользователя.
func (s *Storage) LatestPendingPayment(ctx context.Context, userID int64) (*models.Payment, error) {
	const op = "storage.LatestPendingPayment"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPayment(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 AND status = 'pending'
		 ORDER BY created_at DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
