package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var sessionColumns = []string{"id", "chat_id", "user_id", "openai_key", "created_at", "updated_at"}

type SessionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(db *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SessionRepository) GetByChatID(ctx context.Context, chatID int64) (*models.ChatSession, error) {
	query := squirrel.Select(sessionColumns...).
		From("chat_sessions").
		Where(squirrel.Eq{"chat_id": chatID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var s models.ChatSession
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&s.ID, &s.ChatID, &s.UserID, &s.OpenAIKey, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.ChatSession) error {
	query := squirrel.Insert("chat_sessions").
		Columns(sessionColumns...).
		Values(session.ID, session.ChatID, session.UserID, session.OpenAIKey, session.CreatedAt, session.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateKey replaces the stored extraction credential for a chat. It reports
// whether a session row existed.
func (r *SessionRepository) UpdateKey(ctx context.Context, chatID int64, key string) (bool, error) {
	query := squirrel.Update("chat_sessions").
		Set("openai_key", key).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"chat_id": chatID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}
