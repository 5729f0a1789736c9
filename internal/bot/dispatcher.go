// Package bot contains the Telegram-facing core: a long-poll driver and a
// command dispatcher routing inbound messages to the receipt store and the
// extraction bridge.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/dto"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/service"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/telegram"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport is the outbound side of the chat provider.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetFilePath(ctx context.Context, fileID string) (string, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

// Sessions is the chat-to-account directory.
type Sessions interface {
	FindByChatID(ctx context.Context, chatID int64) (*models.ChatSession, error)
	GetOrCreate(ctx context.Context, chatID int64, displayName string) (*models.ChatSession, error)
	SetCredential(ctx context.Context, chatID int64, key string) (bool, error)
}

// Receipts is the persistence contract the dispatcher consumes.
type Receipts interface {
	CreateForUser(ctx context.Context, userID uuid.UUID, extracted *dto.ExtractedReceipt, notes string, raw []byte) (*models.UserReceipt, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.UserReceipt, error)
	Unlink(ctx context.Context, userID, receiptID uuid.UUID) (bool, error)
	Delete(ctx context.Context, receiptID uuid.UUID) (bool, error)
	StatsForUser(ctx context.Context, userID uuid.UUID) (*models.ReceiptStats, error)
}

// Extractor is the AI bridge plus its decode step.
type Extractor interface {
	AnalyzeImage(ctx context.Context, dataURI, apiKey string) (string, error)
	AnalyzeText(ctx context.Context, text, apiKey string) (string, error)
	Decode(raw string) (*dto.ExtractionResult, error)
}

const historyLimit = 10

const (
	msgRegisterFirst  = "Please register first with /start."
	msgSetKeyUsage    = "Usage: /setkey <your API key>"
	msgSetKeySaved    = "Your API key is saved. Send me a photo of a receipt to try it out."
	msgNoKey          = "Please set your API key first: /setkey <your API key>"
	msgDeleteUsage    = "Usage: /delete <receipt id>"
	msgReceiptUsage   = "Usage: /receipt <receipt id>"
	msgNoReceipts     = "No receipts yet. Send me a photo of one to get started."
	msgAnalyzing      = "Analyzing your receipt, this can take a few seconds..."
	msgParseFailure   = "I could not make sense of the analysis result. Please try again, ideally with a sharper photo."
	msgBridgeFailure  = "The analysis service is unavailable right now. Please try again later."
	msgGenericFailure = "Something went wrong. Please try again."
	msgUnknownCommand = "Unknown command. See /help for what I can do."

	msgHelp = `*Bill Scan Bot*

Send me a photo of a receipt, or describe an expense in plain text, and I will file it for you.

/start - register
/setkey <key> - store your OpenAI API key
/stats - spending summary
/history - your 10 latest receipts
/receipt <id> - show one receipt in full
/delete <id> - remove a receipt
/help - this message`
)

// route pairs a matcher with a handler. Routes are evaluated in declaration
// order and the first match wins, which keeps the priority between
// overlapping prefixes (e.g. /start before the free-text fallback) explicit.
type route struct {
	name  string
	match func(m *telegram.Message) bool
	run   func(ctx context.Context, m *telegram.Message) (string, error)
}

type Dispatcher struct {
	client      Transport
	sessions    Sessions
	receipts    Receipts
	extract     Extractor
	fallbackKey string
	logger      *zap.Logger
	routes      []route
}

// NewDispatcher wires the routing table. fallbackKey may be empty; when set
// it serves sessions that never ran /setkey.
func NewDispatcher(client Transport, sessions Sessions, receipts Receipts, extract Extractor, fallbackKey string, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		client:      client,
		sessions:    sessions,
		receipts:    receipts,
		extract:     extract,
		fallbackKey: fallbackKey,
		logger:      logger,
	}

	d.routes = []route{
		{name: "start", match: command("/start"), run: d.handleStart},
		{name: "setkey", match: command("/setkey"), run: d.handleSetKey},
		{name: "stats", match: command("/stats"), run: d.handleStats},
		{name: "history", match: command("/history"), run: d.handleHistory},
		{name: "delete", match: command("/delete"), run: d.handleDelete},
		{name: "help", match: command("/help"), run: d.handleHelp},
		{name: "receipt", match: command("/receipt"), run: d.handleReceipt},
		{name: "photo", match: func(m *telegram.Message) bool { return len(m.Photo) > 0 }, run: d.handlePhoto},
		{name: "text", match: func(m *telegram.Message) bool {
			return m.Text != "" && !strings.HasPrefix(m.Text, "/")
		}, run: d.handleText},
		{name: "unknown", match: func(m *telegram.Message) bool {
			return strings.HasPrefix(m.Text, "/")
		}, run: d.handleUnknown},
	}
	return d
}

func command(prefix string) func(m *telegram.Message) bool {
	return func(m *telegram.Message) bool {
		return strings.HasPrefix(m.Text, prefix)
	}
}

// HandleUpdate classifies one update and sends the reply. Failures are logged
// and rendered to the user; they never propagate to the poll loop.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd *telegram.Update) {
	m := upd.Message
	if m == nil {
		return
	}

	for _, rt := range d.routes {
		if !rt.match(m) {
			continue
		}

		reply, err := rt.run(ctx, m)
		if err != nil {
			d.logger.Error("Handler failed",
				zap.String("handler", rt.name),
				zap.Int64("chat_id", m.Chat.ID),
				zap.Error(err),
			)
			reply = msgGenericFailure
		}
		if reply != "" {
			if err := d.client.SendMessage(ctx, m.Chat.ID, reply); err != nil {
				d.logger.Error("Failed to send reply",
					zap.Int64("chat_id", m.Chat.ID),
					zap.Error(err),
				)
			}
		}
		return
	}
	// Nothing matched (no text, no photo): stay silent.
}

func (d *Dispatcher) handleStart(ctx context.Context, m *telegram.Message) (string, error) {
	session, err := d.sessions.GetOrCreate(ctx, m.Chat.ID, m.DisplayName())
	if err != nil {
		return "", err
	}

	name := m.DisplayName()
	if name == "" {
		name = "there"
	}
	greeting := fmt.Sprintf("Hi %s! I file your receipts for you.\n\n", escapeMarkdown(name)) +
		"Send me a photo of a receipt or describe an expense in plain text.\n"
	if !session.HasKey() && d.fallbackKey == "" {
		greeting += "First store your OpenAI API key with /setkey <key>.\n"
	}
	greeting += "See /help for all commands."
	return greeting, nil
}

func (d *Dispatcher) handleSetKey(ctx context.Context, m *telegram.Message) (string, error) {
	fields := strings.Fields(m.Text)
	if len(fields) < 2 {
		return msgSetKeyUsage, nil
	}

	if _, err := d.sessions.GetOrCreate(ctx, m.Chat.ID, m.DisplayName()); err != nil {
		return "", err
	}
	updated, err := d.sessions.SetCredential(ctx, m.Chat.ID, fields[1])
	if err != nil {
		return "", err
	}
	if !updated {
		return "", fmt.Errorf("session vanished while setting credential for chat %d", m.Chat.ID)
	}
	return msgSetKeySaved, nil
}

func (d *Dispatcher) handleStats(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}

	stats, err := d.receipts.StatsForUser(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	return renderStats(stats), nil
}

func (d *Dispatcher) handleHistory(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}

	receipts, err := d.receipts.ListForUser(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	if len(receipts) == 0 {
		return msgNoReceipts, nil
	}
	return renderHistory(receipts, historyLimit), nil
}

func (d *Dispatcher) handleReceipt(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}

	prefix := receiptArg(m.Text)
	if prefix == "" {
		return msgReceiptUsage, nil
	}

	found, err := d.findByPrefix(ctx, session.UserID, prefix)
	if err != nil {
		return "", err
	}
	if found == nil {
		return fmt.Sprintf("No receipt found for `%s`.", prefix), nil
	}
	return renderReceipt(&found.Receipt, found.Items), nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}

	fields := strings.Fields(m.Text)
	if len(fields) < 2 {
		return msgDeleteUsage, nil
	}
	prefix := fields[1]

	found, err := d.findByPrefix(ctx, session.UserID, prefix)
	if err != nil {
		return "", err
	}
	if found == nil {
		return fmt.Sprintf("No receipt found for `%s`.", prefix), nil
	}

	// Drop the ownership link before the receipt itself so there is no
	// window with a dangling link.
	if _, err := d.receipts.Unlink(ctx, session.UserID, found.ID); err != nil {
		return "", err
	}
	if _, err := d.receipts.Delete(ctx, found.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Receipt `%s` deleted.", found.ShortID()), nil
}

func (d *Dispatcher) handleHelp(ctx context.Context, m *telegram.Message) (string, error) {
	return msgHelp, nil
}

func (d *Dispatcher) handlePhoto(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}
	key := d.extractionKey(session)
	if key == "" {
		return msgNoKey, nil
	}

	if err := d.client.SendChatAction(ctx, m.Chat.ID, "typing"); err != nil {
		d.logger.Warn("Failed to send chat action", zap.Error(err))
	}

	photo := m.LargestPhoto()
	path, err := d.client.GetFilePath(ctx, photo.FileID)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("no download path for file %s", photo.FileID)
	}

	data, err := d.client.DownloadFile(ctx, path)
	if err != nil {
		return "", err
	}

	if err := d.client.SendMessage(ctx, m.Chat.ID, msgAnalyzing); err != nil {
		d.logger.Warn("Failed to send progress message", zap.Error(err))
	}

	raw, err := d.extract.AnalyzeImage(ctx, service.ImageDataURI(path, data), key)
	if err != nil {
		d.logger.Warn("Extraction call failed", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
		return msgBridgeFailure, nil
	}

	return d.persistExtraction(ctx, session, raw, m.Caption)
}

func (d *Dispatcher) handleText(ctx context.Context, m *telegram.Message) (string, error) {
	session, reply, err := d.requireSession(ctx, m)
	if session == nil {
		return reply, err
	}
	key := d.extractionKey(session)
	if key == "" {
		return msgNoKey, nil
	}

	if err := d.client.SendChatAction(ctx, m.Chat.ID, "typing"); err != nil {
		d.logger.Warn("Failed to send chat action", zap.Error(err))
	}

	raw, err := d.extract.AnalyzeText(ctx, m.Text, key)
	if err != nil {
		d.logger.Warn("Extraction call failed", zap.Int64("chat_id", m.Chat.ID), zap.Error(err))
		return msgBridgeFailure, nil
	}

	// Text messages carry no caption, so no notes on the link.
	return d.persistExtraction(ctx, session, raw, "")
}

func (d *Dispatcher) handleUnknown(ctx context.Context, m *telegram.Message) (string, error) {
	return msgUnknownCommand, nil
}

// persistExtraction decodes raw bridge output and stores it on success. The
// three failure modes (malformed payload, provider domain error, storage
// error) each produce a distinct reply.
func (d *Dispatcher) persistExtraction(ctx context.Context, session *models.ChatSession, raw, notes string) (string, error) {
	result, err := d.extract.Decode(raw)
	if err != nil {
		d.logger.Warn("Extraction payload malformed",
			zap.Int64("chat_id", session.ChatID),
			zap.Error(err),
		)
		return msgParseFailure, nil
	}
	if result.DomainError != "" {
		return escapeMarkdown(result.DomainError), nil
	}

	saved, err := d.receipts.CreateForUser(ctx, session.UserID, result.Receipt, notes, []byte(raw))
	if err != nil {
		return "", err
	}

	return renderReceipt(&saved.Receipt, saved.Items) +
		fmt.Sprintf("\n\nSaved as `%s`", saved.ShortID()), nil
}

// requireSession resolves the chat's session without provisioning. A nil
// session with an empty error means the user must /start first.
func (d *Dispatcher) requireSession(ctx context.Context, m *telegram.Message) (*models.ChatSession, string, error) {
	session, err := d.sessions.FindByChatID(ctx, m.Chat.ID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return nil, msgRegisterFirst, nil
		}
		return nil, "", err
	}
	return session, "", nil
}

func (d *Dispatcher) extractionKey(session *models.ChatSession) string {
	if session.HasKey() {
		return session.OpenAIKey
	}
	return d.fallbackKey
}

// findByPrefix scans the user's receipts newest-first and returns the first
// id-prefix match, or nil when none matches.
func (d *Dispatcher) findByPrefix(ctx context.Context, userID uuid.UUID, prefix string) (*models.UserReceipt, error) {
	receipts, err := d.receipts.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, ur := range receipts {
		if ur.MatchesIDPrefix(prefix) {
			return ur, nil
		}
	}
	return nil, nil
}

// receiptArg extracts the id-prefix from "/receipt_ab12cd34" (the tappable
// form rendered in /history) as well as "/receipt ab12cd34".
func receiptArg(text string) string {
	rest := strings.TrimPrefix(text, "/receipt")
	rest = strings.TrimPrefix(rest, "_")
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
