// Package persona профили девушек: пошаговое и сгенерированное создание,
// редактирование полей и удаление.
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/storage/repository"
)

// DefaultCommunicationStyle стиль общения профиля, созданного вручную.
const DefaultCommunicationStyle = "Общается дружелюбно и тепло"

// ErrNoPersona у пользователя нет активного профиля.
var ErrNoPersona = errors.New("no active persona")

// Repository хранилище профилей.
type Repository interface {
	CreatePersona(ctx context.Context, p *models.Persona) error
	ActivePersona(ctx context.Context, userID int64) (*models.Persona, error)
	UpdatePersonaField(ctx context.Context, personaID, userID int64, field models.PersonaField, value any) error
	DeactivatePersona(ctx context.Context, personaID, userID int64) error
}

// Suggester генерирует профиль по описанию.
type Suggester interface {
	SuggestProfile(ctx context.Context, preferences, userContext string) llm.ProfileSuggestion
}

// Draft черновик профиля, который заполняет мастер создания.
type Draft struct {
	Name        string `json:"name,omitempty"`
	Age         int    `json:"age,omitempty"`
	Personality string `json:"personality,omitempty"`
	Appearance  string `json:"appearance,omitempty"`
	Interests   string `json:"interests,omitempty"`
	Background  string `json:"background,omitempty"`
}

// Service сервис профилей.
type Service struct {
	repo      Repository
	suggester Suggester
	log       *slog.Logger
}

// New создает сервис профилей.
func New(repo Repository, suggester Suggester, log *slog.Logger) *Service {
	return &Service{repo: repo, suggester: suggester, log: log}
}

// Active активный профиль пользователя или ErrNoPersona.
func (s *Service) Active(ctx context.Context, userID int64) (*models.Persona, error) {
	const op = "persona.Active"
	p, err := s.repo.ActivePersona(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPersona)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CreateFromDraft создает профиль из заполненного мастером черновика.
func (s *Service) CreateFromDraft(ctx context.Context, userID int64, d Draft) (*models.Persona, error) {
	const op = "persona.CreateFromDraft"
	fields := []struct {
		field models.PersonaField
		value string
	}{
		{models.FieldName, d.Name},
		{models.FieldPersonality, d.Personality},
		{models.FieldAppearance, d.Appearance},
		{models.FieldInterests, d.Interests},
		{models.FieldBackground, d.Background},
	}
	for _, f := range fields {
		if _, err := ValidateField(f.field, f.value); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if d.Age < llm.MinAge || d.Age > llm.MaxAge {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Field: models.FieldAge, Message: "❌ Пожалуйста, введите корректный возраст (от 18 до 50 лет)"})
	}

	p := &models.Persona{
		UserID:             userID,
		Name:               d.Name,
		Age:                d.Age,
		Personality:        d.Personality,
		Appearance:         d.Appearance,
		Interests:          d.Interests,
		Background:         d.Background,
		CommunicationStyle: DefaultCommunicationStyle,
	}
	if err := s.create(ctx, p, "manual"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CreateSuggested создает профиль, предложенный моделью по пожеланиям.
// Если модель недоступна, используется профиль по умолчанию.
func (s *Service) CreateSuggested(ctx context.Context, user *models.User, preferences string) (*models.Persona, error) {
	const op = "persona.CreateSuggested"
	sg := s.suggester.SuggestProfile(ctx, preferences, "")
	p := &models.Persona{
		UserID:             user.ID,
		Name:               sg.Name,
		Age:                llm.ClampAge(sg.Age),
		Personality:        sg.Personality,
		Appearance:         sg.Appearance,
		Interests:          sg.Interests,
		Background:         sg.Background,
		CommunicationStyle: sg.CommunicationStyle,
	}
	if err := s.create(ctx, p, "suggested"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// CreateRandom создает случайный профиль.
func (s *Service) CreateRandom(ctx context.Context, user *models.User) (*models.Persona, error) {
	return s.CreateSuggested(ctx, user, llm.RandomPreferences)
}

func (s *Service) create(ctx context.Context, p *models.Persona, source string) error {
	if err := s.repo.CreatePersona(ctx, p); err != nil {
		return err
	}
	s.log.Info("persona created",
		sl.UserID(p.UserID),
		slog.Int64("persona_id", p.ID),
		slog.String("source", source),
	)
	return nil
}

// UpdateField проверяет и записывает новое значение поля активного профиля.
func (s *Service) UpdateField(ctx context.Context, userID int64, field models.PersonaField, raw string) (*models.Persona, error) {
	const op = "persona.UpdateField"
	value, err := ValidateField(field, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := s.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdatePersonaField(ctx, p.ID, userID, field, value); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	applyField(p, field, value)
	return p, nil
}

// Delete деактивирует активный профиль пользователя.
func (s *Service) Delete(ctx context.Context, userID int64) error {
	const op = "persona.Delete"
	p, err := s.Active(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeactivatePersona(ctx, p.ID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("persona deactivated", sl.UserID(userID), slog.Int64("persona_id", p.ID))
	return nil
}

func applyField(p *models.Persona, field models.PersonaField, value any) {
	switch field {
	case models.FieldName:
		p.Name = value.(string)
	case models.FieldAge:
		p.Age = value.(int)
	case models.FieldPersonality:
		p.Personality = value.(string)
	case models.FieldAppearance:
		p.Appearance = value.(string)
	case models.FieldInterests:
		p.Interests = value.(string)
	case models.FieldBackground:
		p.Background = value.(string)
	case models.FieldCommunicationStyle:
		p.CommunicationStyle = value.(string)
	}
}
