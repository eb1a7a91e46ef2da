package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// SaveMessage сохраняет сообщение переписки.
func (s *Storage) SaveMessage(ctx context.Context, msg *models.ConversationMessage) error {
	const op = "storage.SaveMessage"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	err := s.conn(ctx).QueryRowContext(ctx,
		`INSERT INTO conversations (user_id, persona_id, role, content) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		msg.UserID, msg.PersonaID, string(msg.Role), msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecentMessages последние limit сообщений в хронологическом порядке.
func (s *Storage) RecentMessages(ctx context.Context, userID, personaID int64, limit int) ([]models.ConversationMessage, error) {
	const op = "storage.RecentMessages"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT id, user_id, persona_id, role, content, created_at FROM (
			SELECT id, user_id, persona_id, role, content, created_at
			FROM conversations
			WHERE user_id = $1 AND persona_id = $2 AND NOT is_deleted
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) recent ORDER BY created_at, id`, userID, personaID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.PersonaID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ClearHistory помечает переписку удаленной. Возвращает число сообщений.
func (s *Storage) ClearHistory(ctx context.Context, userID, personaID int64) (int64, error) {
	const op = "storage.ClearHistory"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE conversations SET is_deleted = TRUE
		 WHERE user_id = $1 AND persona_id = $2 AND NOT is_deleted`, userID, personaID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ConversationStats статистика неудаленной переписки.
func (s *Storage) ConversationStats(ctx context.Context, userID, personaID int64) (models.ConversationStats, error) {
	const op = "storage.ConversationStats"
	var st models.ConversationStats
	if err := checkCtx(ctx, op); err != nil {
		return st, err
	}
	var first, last sql.NullTime
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE role = 'user'),
			COUNT(*) FILTER (WHERE role = 'assistant'),
			MIN(created_at), MAX(created_at)
		 FROM conversations
		 WHERE user_id = $1 AND persona_id = $2 AND NOT is_deleted`, userID, personaID,
	).Scan(&st.TotalMessages, &st.UserMessages, &st.AssistantMessages, &first, &last)
	if err != nil {
		return st, fmt.Errorf("%s: %w", op, err)
	}
	st.FirstMessageAt = nullTime(first)
	st.LastMessageAt = nullTime(last)
	return st, nil
}
