package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const planColumns = `id, name, plan_type, duration_days, price, currency, description, features,
	discount_percentage, is_popular, is_active, created_at`

func scanPlan(row scanner) (*models.Plan, error) {
	var p models.Plan
	var features []byte
	err := row.Scan(&p.ID, &p.Name, &p.PlanType, &p.DurationDays, &p.Price, &p.Currency, &p.Description,
		&features, &p.DiscountPercentage, &p.IsPopular, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	return &p, nil
}

// ListPlans активные тарифы по возрастанию длительности.
func (s *Storage) ListPlans(ctx context.Context) ([]models.Plan, error) {
	const op = "storage.ListPlans"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+planColumns+` FROM subscription_plans WHERE is_active ORDER BY duration_days`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetPlan тариф по ID.
func (s *Storage) GetPlan(ctx context.Context, planID int64) (*models.Plan, error) {
	const op = "storage.GetPlan"
	return s.getPlan(ctx, op, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, planID)
}

// GetPlanByType тариф по типу.
func (s *Storage) GetPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error) {
	const op = "storage.GetPlanByType"
	return s.getPlan(ctx, op, `SELECT `+planColumns+` FROM subscription_plans WHERE plan_type = $1`, string(planType))
}

func (s *Storage) getPlan(ctx context.Context, op, query string, arg any) (*models.Plan, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPlan(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// SeedPlans заполняет каталог, только если в нем нет ни одного тарифа.
// Возвращает число добавленных тарифов.
func (s *Storage) SeedPlans(ctx context.Context, plans []models.Plan) (int, error) {
	const op = "storage.SeedPlans"
	inserted := 0
	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx, `LOCK TABLE subscription_plans IN EXCLUSIVE MODE`); err != nil {
			return err
		}
		var count int
		if err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM subscription_plans`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		for _, p := range plans {
			features, err := json.Marshal(p.Features)
			if err != nil {
				return err
			}
			_, err = s.conn(ctx).ExecContext(ctx,
				`INSERT INTO subscription_plans
				 (name, plan_type, duration_days, price, currency, description, features, discount_percentage, is_popular, is_active)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				p.Name, string(p.PlanType), p.DurationDays, p.Price, p.Currency, p.Description, string(features),
				p.DiscountPercentage, p.IsPopular, p.IsActive)
			if err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return inserted, nil
}
