package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/repository"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/auth"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound distinguishes "this chat never registered" from a
// storage failure at the directory boundary.
var ErrSessionNotFound = errors.New("chat session not found")

type SessionRepo interface {
	GetByChatID(ctx context.Context, chatID int64) (*models.ChatSession, error)
	Create(ctx context.Context, session *models.ChatSession) error
	UpdateKey(ctx context.Context, chatID int64, key string) (bool, error)
}

type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
}

// SessionService maps Telegram chats to accounts, provisioning both lazily.
type SessionService struct {
	sessions SessionRepo
	users    UserRepo
	logger   *zap.Logger
}

func NewSessionService(sessions SessionRepo, users UserRepo, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		logger:   logger,
	}
}

// FindByChatID is a pure lookup with no provisioning side effect.
func (s *SessionService) FindByChatID(ctx context.Context, chatID int64) (*models.ChatSession, error) {
	session, err := s.sessions.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// GetOrCreate returns the existing session for the chat, or provisions a
// fresh account plus session. Safe to call repeatedly for the same chat:
// redelivered /start events land on the existing row.
func (s *SessionService) GetOrCreate(ctx context.Context, chatID int64, displayName string) (*models.ChatSession, error) {
	session, err := s.sessions.GetByChatID(ctx, chatID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user, err := s.newChatUser(chatID, displayName)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a provisioning race at the account insert: the winning event
		// from the same chat already created the account and its session.
		if errors.Is(err, repository.ErrDuplicate) {
			return s.sessions.GetByChatID(ctx, chatID)
		}
		return nil, fmt.Errorf("failed to create account for chat %d: %w", chatID, err)
	}

	now := time.Now().UTC()
	session = &models.ChatSession{
		ID:        uuid.New(),
		ChatID:    chatID,
		UserID:    user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// Lost a provisioning race against another event from the same chat.
		if errors.Is(err, repository.ErrDuplicate) {
			return s.sessions.GetByChatID(ctx, chatID)
		}
		return nil, err
	}

	s.logger.Info("Provisioned chat session",
		zap.Int64("chat_id", chatID),
		zap.String("user_id", user.ID.String()),
	)
	return session, nil
}

// SetCredential stores the extraction credential on an existing session. It
// reports whether a session existed to update.
func (s *SessionService) SetCredential(ctx context.Context, chatID int64, key string) (bool, error) {
	return s.sessions.UpdateKey(ctx, chatID, key)
}

// newChatUser synthesizes an account for a chat user. Chat users never pick a
// password, so the secret is random and only the handle is deterministic.
func (s *SessionService) newChatUser(chatID int64, displayName string) (*models.User, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	hashed, err := auth.HashPassword(hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}

	if displayName == "" {
		displayName = "Telegram user"
	}

	now := time.Now().UTC()
	return &models.User{
		ID:        uuid.New(),
		Username:  displayName,
		Email:     fmt.Sprintf("tg%d@billscan.local", chatID),
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
