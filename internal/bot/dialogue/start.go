package dialogue

import (
	"context"
	"errors"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/services/entitlement"
)

// start главное меню. Новому пользователю автоматически включается
// пробный период.
func (m *Machine) start(ctx context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	greeting := bot.Greeting(m.clock.Now().In(m.cfg.Location).Hour())

	if !t.user.TrialUsed {
		_, err := m.deps.Entitlements.StartTrial(ctx, t.user)
		switch {
		case err == nil:
			return []bot.Reply{mainMenu(welcomeNewText(greeting, m.cfg.TrialDays))}, nil
		case errors.Is(err, entitlement.ErrTrialAlreadyUsed):
		default:
			m.log.Error("failed to start trial", sl.TelegramID(t.user.TelegramID), sl.Err(err))
		}
	}

	info, err := m.deps.Entitlements.Info(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{mainMenu(welcomeBackText(greeting, info))}, nil
}

func (m *Machine) help(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{{Text: helpText(m.cfg.AdminUsername), Markdown: true}}, nil
}

// cancel из любого состояния в idle, черновик мастера теряется.
func (m *Machine) cancel(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	return []bot.Reply{{Text: cancelledText, ReplyKeyboard: true}}, nil
}

func (m *Machine) backToMain(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	return []bot.Reply{
		bot.Text(mainMenuText),
		{Text: navigationHint, ReplyKeyboard: true},
	}, nil
}

func (m *Machine) settings(ctx context.Context, t *turn) ([]bot.Reply, error) {
	info, err := m.deps.Entitlements.Info(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{markdown(settingsText(t.user, info), nil)}, nil
}
