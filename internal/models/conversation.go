package models

import "time"

// Role автор сообщения в переписке.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage одно сообщение переписки с профилем.
type ConversationMessage struct {
	ID        int64
	UserID    int64
	PersonaID int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

// ConversationStats статистика переписки с профилем.
type ConversationStats struct {
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	FirstMessageAt    *time.Time
	LastMessageAt     *time.Time
}
