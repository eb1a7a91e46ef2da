package dialogue

import (
	"context"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/services/conversation"
)

// startChat переводит в общение с активным профилем.
func (m *Machine) startChat(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return []bot.Reply{{Text: noPersonaText, Keyboard: bot.ProfileKeyboard(false)}}, nil
	}
	intro, err := m.deps.Conversations.Start(ctx, t.user.ID, p)
	if err != nil {
		return nil, err
	}
	t.transition(chatting(p.ID))
	return []bot.Reply{markdown(intro, bot.ConversationKeyboard())}, nil
}

func (m *Machine) stopChat(_ context.Context, t *turn) ([]bot.Reply, error) {
	t.transition(idle())
	return []bot.Reply{{Text: chatStoppedText, ReplyKeyboard: true}}, nil
}

// chatInput отвечает на сообщение от лица профиля. Сбой хранилища не
// меняет состояние и заменяется извинением.
func (m *Machine) chatInput(ctx context.Context, t *turn) ([]bot.Reply, error) {
	p, err := m.activePersona(ctx, t.user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil || p.ID != t.state.PersonaID {
		t.transition(idle())
		return []bot.Reply{bot.Text(chatLostText)}, nil
	}

	m.typing(ctx, t)
	reply, err := m.deps.Conversations.Reply(ctx, t.user.ID, p, t.ev.Text)
	if err != nil {
		m.log.Error("failed to reply in conversation", sl.UserID(t.user.ID), sl.Err(err))
		return []bot.Reply{bot.Text(conversation.ApologyText)}, nil
	}
	return []bot.Reply{bot.Text(reply)}, nil
}

func (m *Machine) askClear(_ context.Context, _ *turn) ([]bot.Reply, error) {
	kb := bot.ConfirmationKeyboard(bot.ActionConfirmClear, bot.ActionAbortClear)
	return []bot.Reply{markdown(clearConfirmText, kb)}, nil
}

func (m *Machine) confirmClear(ctx context.Context, t *turn) ([]bot.Reply, error) {
	if t.state.Kind != KindChatting {
		return []bot.Reply{alert(notChattingText)}, nil
	}
	n, err := m.deps.Conversations.Clear(ctx, t.user.ID, t.state.PersonaID)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{{Text: historyClearedText(n), Keyboard: bot.ConversationKeyboard()}}, nil
}

func (m *Machine) abortClear(_ context.Context, _ *turn) ([]bot.Reply, error) {
	return []bot.Reply{{Text: clearAbortedText, Keyboard: bot.ConversationKeyboard()}}, nil
}

func (m *Machine) stats(ctx context.Context, t *turn) ([]bot.Reply, error) {
	if t.state.Kind != KindChatting {
		return []bot.Reply{alert(notChattingText)}, nil
	}
	st, err := m.deps.Conversations.Stats(ctx, t.user.ID, t.state.PersonaID)
	if err != nil {
		return nil, err
	}
	return []bot.Reply{{Text: bot.FormatConversationStats(st), Keyboard: bot.ConversationKeyboard()}}, nil
}
