package dialogue

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
	"github.com/magabrotheeeer/companion-bot/internal/services/persona"
)

// activePersona активный профиль или nil, если его нет.
func (m *Machine) activePersona(ctx context.Context, userID int64) (*models.Persona, error) {
	p, err := m.deps.Personas.Active(ctx, userID)
	if errors.Is(err, persona.ErrNoPersona) {
		return nil, nil
	}
	return p, err
}

func (m *Machine) profileMenu(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{markdown(noProfileText, bot.ProfileKeyboard(false))}, nil
	}
	return []bot.Reply{markdown(activeProfileText(p), bot.ProfileKeyboard(true))}, nil
}

func (m *Machine) chooseCreation(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{markdown(chooseCreationText, bot.ProfileCreationKeyboard())}, nil
}

func (m *Machine) startWizard(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(wizard(0, persona.Draft{}))
	return []bot.Reply{markdown(wizardStartText, nil)}, nil
}

// wizardInput принимает ответ на текущий шаг мастера. Неверный ввод
// повторяет вопрос без смены шага.
func (m *Machine) wizardInput(ctx context.Context, t *turn) ([]bot.Reply, error) {
	step := t.state.Step
	if step < 0 || step >= len(wizardSteps) {
		t.transition(idle())
		return []bot.Reply{bot.Text(profileErrorText)}, nil
	}
	var draft persona.Draft
	if t.state.Draft != nil {
		draft = *t.state.Draft
	}

	field := wizardSteps[step]
	value, err := persona.ValidateField(field, t.ev.Text)
	var verr *persona.ValidationError
	if errors.As(err, &verr) {
		return []bot.Reply{bot.Text(verr.Message)}, nil
	}
	if err != nil {
		return nil, err
	}
	switch field {
	case models.FieldName:
		draft.Name = value.(string)
	case models.FieldAge:
		draft.Age = value.(int)
	case models.FieldPersonality:
		draft.Personality = value.(string)
	case models.FieldAppearance:
		draft.Appearance = value.(string)
	case models.FieldInterests:
		draft.Interests = value.(string)
	case models.FieldBackground:
		draft.Background = value.(string)
	}

	if step+1 < len(wizardSteps) {
		t.transition(wizard(step+1, draft))
		return []bot.Reply{bot.Text(wizardPrompt(step, draft))}, nil
	}

	t.transition(idle())
	p, err := m.deps.Personas.CreateFromDraft(ctx, t.user.ID, draft)
	if err != nil {
		m.log.Error("failed to create persona", sl.UserID(t.user.ID), sl.Err(err))
		return []bot.Reply{bot.Text(profileErrorText)}, nil
	}
	return []bot.Reply{markdown(profileCreatedText(p), bot.ProfileKeyboard(true))}, nil
}

func (m *Machine) askPreferences(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(preferences())
	return []bot.Reply{markdown(preferencesPromptText, nil)}, nil
}

// preferencesInput создает профиль по описанию пользователя. Слишком короткое
// описание возвращает в idle, как и любая попытка.
func (m *Machine) preferencesInput(ctx context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	prefs, err := persona.ValidatePreferences(t.ev.Text)
	var verr *persona.ValidationError
	if errors.As(err, &verr) {
		return []bot.Reply{bot.Text(verr.Message)}, nil
	}
	if err != nil {
		return nil, err
	}
	m.typing(ctx, t)
	p, err := m.deps.Personas.CreateSuggested(ctx, t.user, prefs)
	if err != nil {
		m.log.Error("failed to create suggested persona", sl.UserID(t.user.ID), sl.Err(err))
		return []bot.Reply{bot.Text(preferencesBusyText), bot.Text(profileErrorText)}, nil
	}
	return []bot.Reply{
		bot.Text(preferencesBusyText),
		markdown(profileSuggestedText(p), bot.ProfileKeyboard(true)),
	}, nil
}

func (m *Machine) createRandom(ctx context.Context, t *turn) ([]bot.Reply, error) {
	existing, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return []bot.Reply{
			alert("⚠️ Профиль уже существует"),
			{Text: profileExistsText, Keyboard: bot.ProfileKeyboard(true)},
		}, nil
	}
	m.typing(ctx, t)
	p, err := m.deps.Personas.CreateRandom(ctx, t.user)
	if err != nil {
		m.log.Error("failed to create random persona", sl.UserID(t.user.ID), sl.Err(err))
		return []bot.Reply{
			alert("❌ Ошибка при создании профиля"),
			markdown(profileRandomErrText, bot.ProfileKeyboard(false)),
		}, nil
	}
	return []bot.Reply{
		bot.Text(randomBusyText),
		markdown(profileRandomText(p), bot.ProfileKeyboard(true)),
	}, nil
}

func (m *Machine) viewProfile(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{alert(profileNotFoundText)}, nil
	}
	return []bot.Reply{markdown("👤 **Профиль девушки:**\n\n"+bot.FormatProfile(p), bot.ProfileKeyboard(true))}, nil
}

func (m *Machine) editMenu(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{markdown(editMenuText, bot.ProfileEditKeyboard())}, nil
}

// startEditing ждет новое значение одного поля профиля.
func (m *Machine) startEditing(_ context.Context, t *turn) ([]bot.Reply, error) {
	field := models.PersonaField(t.ev.Arg)
	prompt, ok := editPrompts[field]
	if !ok {
		return []bot.Reply{alert("❌ Неизвестное поле профиля")}, nil
	}
	t.transition(editing(field))
	return []bot.Reply{{
		Text:     prompt,
		Keyboard: [][]bot.Button{{{Text: "❌ Отмена", Action: bot.ActionEditProfile}}},
		Markdown: true,
	}}, nil
}

func (m *Machine) editInput(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.deps.Personas.UpdateField(ctx, t.user.ID, t.state.Field, t.ev.Text)
	var verr *persona.ValidationError
	switch {
	case errors.As(err, &verr):
		return []bot.Reply{bot.Text(verr.Message)}, nil
	case errors.Is(err, persona.ErrNoPersona):
		t.transition(idle())
		return []bot.Reply{bot.Text(profileNotFoundText)}, nil
	case err != nil:
		return nil, err
	}
	t.transition(idle())
	return []bot.Reply{markdown(fieldUpdatedText(t.state.Field, p), bot.ProfileEditKeyboard())}, nil
}

func (m *Machine) editDone(ctx context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{alert(profileNotFoundText)}, nil
	}
	return []bot.Reply{markdown("✅ **Редактирование завершено**\n\n"+bot.FormatProfile(p), bot.ProfileKeyboard(true))}, nil
}

func (m *Machine) askDelete(_ context.Context, _ *turn) ([]bot.Reply, error) {
	kb := bot.ConfirmationKeyboard(bot.ActionConfirmDelete, bot.ActionAbortDelete)
	return []bot.Reply{markdown(deleteConfirmText, kb)}, nil
}

// confirmDelete удаляет профиль. Повторное подтверждение отвечает, что
// профиля уже нет.
func (m *Machine) confirmDelete(ctx context.Context, t *turn) ([]bot.Reply, error) {
	err := m.deps.Personas.Delete(ctx, t.user.ID)
	if errors.Is(err, persona.ErrNoPersona) {
		return []bot.Reply{alert(profileNotFoundText)}, nil
	}
	if err != nil {
		return nil, err
	}
	if t.state.Kind == KindChatting {
		t.transition(idle())
	}
	return []bot.Reply{{Text: deletedText, Keyboard: bot.ProfileKeyboard(false)}}, nil
}

func (m *Machine) abortDelete(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{{Text: deleteAbortedText, Keyboard: bot.ProfileKeyboard(p != nil)}}, nil
}

func (m *Machine) typing(ctx context.Context, t *turn) {
	if m.deps.Typer != nil {
		m.deps.Typer.Typing(ctx, t.ev.ChatID)
	}
}
