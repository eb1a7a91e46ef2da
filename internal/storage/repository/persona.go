package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

const personaColumns = `id, user_id, name, COALESCE(age, 0), personality, appearance, interests, background,
	communication_style, user_description, is_active, created_at, updated_at`

var personaFieldColumns = map[models.PersonaField]string{
	models.FieldName:               "name",
	models.FieldAge:                "age",
	models.FieldPersonality:        "personality",
	models.FieldAppearance:         "appearance",
	models.FieldInterests:          "interests",
	models.FieldBackground:         "background",
	models.FieldCommunicationStyle: "communication_style",
}

func scanPersona(row scanner) (*models.Persona, error) {
	var p models.Persona
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Age, &p.Personality, &p.Appearance, &p.Interests,
		&p.Background, &p.CommunicationStyle, &p.UserDescription, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePersona сохраняет новый активный профиль, деактивируя предыдущий.
func (s *Storage) CreatePersona(ctx context.Context, p *models.Persona) error {
	const op = "storage.CreatePersona"
	err := s.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.conn(ctx).ExecContext(ctx,
			`UPDATE girlfriend_profiles SET is_active = FALSE, updated_at = NOW()
			 WHERE user_id = $1 AND is_active`, p.UserID); err != nil {
			return err
		}
		return s.conn(ctx).QueryRowContext(ctx,
			`INSERT INTO girlfriend_profiles
			 (user_id, name, age, personality, appearance, interests, background, communication_style, user_description)
			 VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $8, $9)
			 RETURNING id, is_active, created_at, updated_at`,
			p.UserID, p.Name, p.Age, p.Personality, p.Appearance, p.Interests, p.Background,
			p.CommunicationStyle, p.UserDescription,
		).Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ActivePersona активный профиль пользователя.
func (s *Storage) ActivePersona(ctx context.Context, userID int64) (*models.Persona, error) {
	const op = "storage.ActivePersona"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPersona(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM girlfriend_profiles WHERE user_id = $1 AND is_active`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPersona профиль по ID, принадлежащий пользователю.
func (s *Storage) GetPersona(ctx context.Context, personaID, userID int64) (*models.Persona, error) {
	const op = "storage.GetPersona"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	p, err := scanPersona(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM girlfriend_profiles WHERE id = $1 AND user_id = $2`, personaID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdatePersonaField меняет одно поле профиля.
func (s *Storage) UpdatePersonaField(ctx context.Context, personaID, userID int64, field models.PersonaField, value any) error {
	const op = "storage.UpdatePersonaField"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	column, ok := personaFieldColumns[field]
	if !ok {
		return fmt.Errorf("%s: unknown field %q", op, field)
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE girlfriend_profiles SET `+column+` = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		personaID, userID, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// DeactivatePersona снимает флаг активности с профиля.
func (s *Storage) DeactivatePersona(ctx context.Context, personaID, userID int64) error {
	const op = "storage.DeactivatePersona"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE girlfriend_profiles SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		personaID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
