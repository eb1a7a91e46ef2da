// Package telegram транспорт бота поверх Telegram Bot API: long polling
// входящих обновлений и отправка ответов с клавиатурами.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/magabrotheeeer/companion-bot/internal/bot"
	"github.com/magabrotheeeer/companion-bot/internal/config"
	"github.com/magabrotheeeer/companion-bot/internal/lib/sl"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client клиент Telegram.
type Client struct {
	api         botAPI
	bot         *tgbotapi.BotAPI
	pollTimeout int
	log         *slog.Logger
}

// New подключается к Bot API с токеном из конфигурации.
func New(cfg config.Telegram, log *slog.Logger) (*Client, error) {
	const op = "telegram.New"
	b, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b.Debug = cfg.Debug
	log.Info("authorized on telegram", slog.String("username", b.Self.UserName))
	return &Client{
		api:         b,
		bot:         b,
		pollTimeout: cfg.PollTimeout,
		log:         log,
	}, nil
}

// Updates запускает long polling и отдает входящие события до отмены ctx.
// Обновления, которые бот не обрабатывает, пропускаются.
func (c *Client) Updates(ctx context.Context) <-chan bot.Event {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	updates := c.bot.GetUpdatesChan(u)

	events := make(chan bot.Event)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := ToEvent(upd)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					c.bot.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return events
}

// Send отправляет ответ в чат. Если Telegram не смог разобрать разметку,
// сообщение повторяется без нее.
func (c *Client) Send(_ context.Context, chatID int64, reply bot.Reply) error {
	const op = "telegram.Send"
	msg := BuildMessage(chatID, reply)
	_, err := c.api.Send(msg)
	if err != nil && msg.ParseMode != "" && isParseError(err) {
		c.log.Warn("markdown rejected, resending as plain text", sl.TelegramID(chatID))
		msg.ParseMode = ""
		_, err = c.api.Send(msg)
	}
	if isForbidden(err) {
		return fmt.Errorf("%s: %w: %w", op, bot.ErrChatUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Answer отвечает на callback. Текст с Alert показывается всплывающим окном.
func (c *Client) Answer(_ context.Context, callbackID string, reply bot.Reply) error {
	const op = "telegram.Answer"
	cb := tgbotapi.NewCallback(callbackID, "")
	if reply.Alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, reply.Text)
	}
	if _, err := c.api.Request(cb); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Typing показывает пользователю, что бот печатает.
func (c *Client) Typing(_ context.Context, chatID int64) {
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		c.log.Debug("failed to send chat action", sl.TelegramID(chatID), sl.Err(err))
	}
}

func isForbidden(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

// ToEvent переводит обновление Telegram во входящее событие. Команды и
// кнопки основного меню становятся действиями, остальной текст остается
// свободным.
func ToEvent(u tgbotapi.Update) (bot.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return bot.Event{}, false
		}
		ev := bot.Event{
			UpdateID:   u.UpdateID,
			ChatID:     q.From.ID,
			From:       identity(q.From),
			CallbackID: q.ID,
		}
		if q.Message != nil && q.Message.Chat != nil {
			ev.ChatID = q.Message.Chat.ID
		}
		ev.Action, ev.Arg = bot.ParseAction(q.Data)
		if ev.Action == "" {
			// Устаревшая кнопка: событие все равно нужно подтвердить.
			ev.Action, ev.Arg = bot.ActionUnknown, q.Data
		}
		return ev, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return bot.Event{}, false
		}
		ev := bot.Event{
			UpdateID: u.UpdateID,
			ChatID:   m.Chat.ID,
			From:     identity(m.From),
			Text:     strings.TrimSpace(m.Text),
		}
		if m.IsCommand() {
			ev.Action, ev.Arg = bot.ActionUnknown, m.Command()
			if a, ok := bot.CommandAction(m.Command()); ok {
				ev.Action = a
				ev.Arg = strings.TrimSpace(m.CommandArguments())
			}
			return ev, true
		}
		if a, ok := bot.MenuAction(ev.Text); ok {
			ev.Action = a
		}
		return ev, true
	}
	return bot.Event{}, false
}

func identity(u *tgbotapi.User) models.Identity {
	return models.Identity{
		TelegramID:   u.ID,
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

// BuildMessage собирает сообщение Bot API из ответа.
func BuildMessage(chatID int64, r bot.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	if r.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	switch {
	case len(r.Keyboard) > 0:
		msg.ReplyMarkup = inlineKeyboard(r.Keyboard)
	case r.ReplyKeyboard:
		msg.ReplyMarkup = mainMenu()
	}
	return msg
}

func inlineKeyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, r := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data()))
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(bot.MainMenu))
	for _, r := range bot.MainMenu {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(r))
		for _, text := range r {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(text))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
