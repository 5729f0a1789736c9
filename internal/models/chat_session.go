package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession binds one Telegram chat to exactly one account. The OpenAI key
// is optional; an empty string means the user has not run /setkey yet.
type ChatSession struct {
	ID        uuid.UUID `db:"id"`
	ChatID    int64     `db:"chat_id"`
	UserID    uuid.UUID `db:"user_id"`
	OpenAIKey string    `db:"openai_key"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *ChatSession) HasKey() bool {
	return s.OpenAIKey != ""
}
