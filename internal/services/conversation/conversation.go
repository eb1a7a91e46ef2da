// Package conversation переписка с профилем: история, модерация и ответы
// генеративной модели.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/llm"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// historyLimit сколько последних сообщений уходит в контекст модели.
const historyLimit = 10

// Ответы, которые пользователь получает вместо текста модели.
const (
	DeflectionText  = "Прости, но я не могу обсуждать такие темы... 😔\nДавай поговорим о чем-то другом! 😊"
	EmptyReplyText  = "Извини, я не знаю что ответить... 😔"
	UnavailableText = "Прости, у меня сейчас проблемы с интернетом... Попробуй написать еще раз 😊"
	ApologyText     = "Прости, у меня сейчас проблемы... 😔\nПопробуй написать еще раз через минутку!"
)

// Repository хранилище переписки.
type Repository interface {
	SaveMessage(ctx context.Context, msg *models.ConversationMessage) error
	RecentMessages(ctx context.Context, userID, personaID int64, limit int) ([]models.ConversationMessage, error)
	ClearHistory(ctx context.Context, userID, personaID int64) (int64, error)
	ConversationStats(ctx context.Context, userID, personaID int64) (models.ConversationStats, error)
}

// Generator генеративная модель.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
	Moderate(ctx context.Context, text string) bool
}

// Service сервис переписки.
type Service struct {
	repo Repository
	gen  Generator
	log  *slog.Logger
}

// New создает сервис переписки.
func New(repo Repository, gen Generator, log *slog.Logger) *Service {
	return &Service{repo: repo, gen: gen, log: log}
}

// Start открывает разговор с профилем и возвращает приветствие. Первое
// приветствие сохраняется в историю как реплика девушки.
func (s *Service) Start(ctx context.Context, userID int64, p *models.Persona) (string, error) {
	const op = "conversation.Start"
	st, err := s.repo.ConversationStats(ctx, userID, p.ID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var greeting string
	if st.TotalMessages == 0 {
		greeting = fmt.Sprintf("💕 Привет! Меня зовут %s!\n\n"+
			"Я очень рада познакомиться с тобой! Расскажи, как дела? Чем занимаешься? 😊", p.Name)
		if err := s.save(ctx, userID, p.ID, models.RoleAssistant, greeting); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	} else {
		greeting = fmt.Sprintf("💕 Привет! Я %s, рада тебя снова видеть!\n\nКак дела? Что нового? 😊", p.Name)
	}

	return fmt.Sprintf("💬 **Общение с %s**\n\n%s\n\n📊 Сообщений в истории: %d\n\n"+
		"Просто напишите сообщение для общения!", p.Name, greeting, st.TotalMessages), nil
}

// Reply сохраняет сообщение пользователя, получает ответ девушки и сохраняет
// его. Недоступность модели заменяется заготовленным ответом.
func (s *Service) Reply(ctx context.Context, userID int64, p *models.Persona, text string) (string, error) {
	const op = "conversation.Reply"
	log := s.log.With(slog.String("op", op), sl.UserID(userID), slog.Int64("persona_id", p.ID))

	if err := s.save(ctx, userID, p.ID, models.RoleUser, text); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	history, err := s.repo.RecentMessages(ctx, userID, p.ID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var reply string
	if !s.gen.Moderate(ctx, text) {
		log.Info("message deflected by moderation")
		reply = DeflectionText
	} else {
		reply, err = s.gen.Generate(ctx, llm.Request{
			PersonaPrompt: p.Prompt(),
			PersonaName:   p.Name,
			Message:       text,
			History:       FormatHistory(history),
		})
		switch {
		case errors.Is(err, llm.ErrEmptyResponse):
			log.Warn("empty response from model")
			reply = EmptyReplyText
		case err != nil:
			log.Error("failed to generate response", sl.Err(err))
			reply = UnavailableText
		}
	}

	if err := s.save(ctx, userID, p.ID, models.RoleAssistant, reply); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return reply, nil
}

// Clear мягко удаляет историю переписки с профилем.
func (s *Service) Clear(ctx context.Context, userID, personaID int64) (int64, error) {
	const op = "conversation.Clear"
	n, err := s.repo.ClearHistory(ctx, userID, personaID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("conversation history cleared", sl.UserID(userID), slog.Int64("messages", n))
	return n, nil
}

// Stats статистика переписки с профилем.
func (s *Service) Stats(ctx context.Context, userID, personaID int64) (models.ConversationStats, error) {
	const op = "conversation.Stats"
	st, err := s.repo.ConversationStats(ctx, userID, personaID)
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

func (s *Service) save(ctx context.Context, userID, personaID int64, role models.Role, content string) error {
	return s.repo.SaveMessage(ctx, &models.ConversationMessage{
		UserID:    userID,
		PersonaID: personaID,
		Role:      role,
		Content:   content,
	})
}

// FormatHistory переписка в виде строк "Пользователь: ..." и "Девушка: ...".
func FormatHistory(msgs []models.ConversationMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := "Девушка"
		if m.Role == models.RoleUser {
			who = "Пользователь"
		}
		lines = append(lines, who+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}
