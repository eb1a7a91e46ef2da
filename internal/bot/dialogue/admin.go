package dialogue

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
)

// isAdmin совпадает ли username с настроенным администратором. Без
// настройки администраторов нет.
func (m *Machine) isAdmin(username string) bool {
	admin := strings.TrimPrefix(m.cfg.AdminUsername, "@")
	return admin != "" && strings.EqualFold(admin, username)
}

func (m *Machine) admin(h handler) handler {
	return func(ctx context.Context, t *turn) ([]bot.Reply, error) {
		if !m.isAdmin(t.ev.From.Username) {
			m.log.Warn("admin command rejected",
				sl.TelegramID(t.ev.From.TelegramID),
				slog.String("action", string(t.ev.Action)),
			)
			return []bot.Reply{bot.Text(noRightsText)}, nil
		}
		return h(ctx, t)
	}
}

func (m *Machine) notificationInfo(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{markdown(notificationInfoText(m.deps.Notifications.Info()), nil)}, nil
}

func (m *Machine) runSweep(ctx context.Context, t *turn) ([]bot.Reply, error) {
	st := m.deps.Notifications.Sweep(ctx, m.clock.Now())
	m.log.Info("manual notification sweep", sl.TelegramID(t.ev.From.TelegramID),
		slog.Int("expiry_warnings", st.ExpiryWarnings),
		slog.Int("expired", st.Expired),
		slog.Int("errors", st.Errors),
	)
	return []bot.Reply{bot.Text(sweepStartedText), markdown(sweepDoneText(st), nil)}, nil
}

func (m *Machine) resetLimit(ctx context.Context, t *turn) ([]bot.Reply, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(t.ev.Arg), 10, 64)
	if err != nil || id <= 0 {
		return []bot.Reply{bot.Text(resetUsageText)}, nil
	}
	if err := m.deps.Limits.Reset(ctx, id); err != nil {
		return nil, err
	}
	m.log.Info("rate limit reset by admin", sl.TelegramID(id))
	return []bot.Reply{bot.Text(limitResetText(id))}, nil
}

func (m *Machine) rateLimitStats(ctx context.Context, _ *turn) ([]bot.Reply, error) {
	st, err := m.deps.Limits.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{markdown(rateLimitStatsText(st), nil)}, nil
}
