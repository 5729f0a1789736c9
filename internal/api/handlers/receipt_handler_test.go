package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/dto"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
)

type fakeStore struct {
	created   []*models.UserReceipt
	notes     []string
	createErr error
}

func (f *fakeStore) CreateForUser(_ context.Context, _ uuid.UUID, extracted *dto.ExtractedReceipt, notes string, raw []byte) (*models.UserReceipt, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	ur := &models.UserReceipt{
		Receipt: models.Receipt{
			ID:          uuid.New(),
			StoreName:   extracted.StoreName,
			TotalAmount: extracted.TotalAmount,
			RawPayload:  raw,
		},
		AddedAt: time.Now(),
		Notes:   notes,
	}
	f.created = append(f.created, ur)
	f.notes = append(f.notes, notes)
	return ur, nil
}

func (f *fakeStore) ListForUser(_ context.Context, _ uuid.UUID) ([]*models.UserReceipt, error) {
	return nil, nil
}

func (f *fakeStore) GetForUser(_ context.Context, _, _ uuid.UUID) (*models.UserReceipt, error) {
	return nil, nil
}

func (f *fakeStore) Unlink(_ context.Context, _, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) Delete(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeStore) StatsForUser(_ context.Context, _ uuid.UUID) (*models.ReceiptStats, error) {
	return &models.ReceiptStats{}, nil
}

type fakeAnalyzer struct {
	raw        string
	analyzeErr error
	result     *dto.ExtractionResult
	decodeErr  error

	imageCalls  int
	textCalls   int
	lastDataURI string
	lastText    string
	lastKey     string
}

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, dataURI, apiKey string) (string, error) {
	f.imageCalls++
	f.lastDataURI = dataURI
	f.lastKey = apiKey
	return f.raw, f.analyzeErr
}

func (f *fakeAnalyzer) AnalyzeText(_ context.Context, text, apiKey string) (string, error) {
	f.textCalls++
	f.lastText = text
	f.lastKey = apiKey
	return f.raw, f.analyzeErr
}

func (f *fakeAnalyzer) Decode(_ string) (*dto.ExtractionResult, error) {
	return f.result, f.decodeErr
}

// newAnalyzeApp mounts the handler behind a stub of the auth middleware that
// injects a fixed user id.
func newAnalyzeApp(h *ReceiptHandler, userID uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Post("/receipts/analyze", func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		return c.Next()
	}, h.Analyze)
	return app
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeReceipt(t *testing.T, resp *http.Response) dto.ReceiptResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out dto.ReceiptResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestReceiptHandler_AnalyzeText(t *testing.T) {
	store := &fakeStore{}
	analyzer := &fakeAnalyzer{
		raw:    `{"store_name":"REWE","total":13.40}`,
		result: &dto.ExtractionResult{Receipt: &dto.ExtractedReceipt{StoreName: "REWE"}},
	}
	app := newAnalyzeApp(NewReceiptHandler(store, analyzer, "sk-fallback", zap.NewNop()), uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/receipts/analyze", strings.NewReader(`{"text":"coffee 3.50"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, analyzer.textCalls)
	assert.Equal(t, "coffee 3.50", analyzer.lastText)
	assert.Equal(t, "sk-fallback", analyzer.lastKey)
	require.Len(t, store.created, 1)
	assert.Equal(t, "REWE", decodeReceipt(t, resp).StoreName)
}

func TestReceiptHandler_AnalyzeImage(t *testing.T) {
	store := &fakeStore{}
	analyzer := &fakeAnalyzer{
		raw:    `{"store_name":"REWE"}`,
		result: &dto.ExtractionResult{Receipt: &dto.ExtractedReceipt{StoreName: "REWE"}},
	}
	app := newAnalyzeApp(NewReceiptHandler(store, analyzer, "", zap.NewNop()), uuid.New())

	body, contentType := multipartBody(t, "receipt.png", []byte{1, 2}, map[string]string{"notes": "team lunch"})
	req := httptest.NewRequest(http.MethodPost, "/receipts/analyze", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-OpenAI-Key", "sk-caller")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, analyzer.imageCalls)
	assert.Zero(t, analyzer.textCalls)
	assert.Equal(t, "data:image/png;base64,AQI=", analyzer.lastDataURI)
	assert.Equal(t, "sk-caller", analyzer.lastKey)
	require.Len(t, store.created, 1)
	assert.Equal(t, "team lunch", store.notes[0])
}

func TestReceiptHandler_Analyze_MissingInput(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	app := newAnalyzeApp(NewReceiptHandler(&fakeStore{}, analyzer, "sk-fallback", zap.NewNop()), uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/receipts/analyze", strings.NewReader(`{"text":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, analyzer.textCalls)
	assert.Zero(t, analyzer.imageCalls)
}

func TestReceiptHandler_Analyze_NoCredential(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	app := newAnalyzeApp(NewReceiptHandler(&fakeStore{}, analyzer, "", zap.NewNop()), uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/receipts/analyze", strings.NewReader(`{"text":"coffee"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, analyzer.textCalls)
}

func TestReceiptHandler_Analyze_DomainError(t *testing.T) {
	store := &fakeStore{}
	analyzer := &fakeAnalyzer{
		raw:    `{"error":"not a receipt"}`,
		result: &dto.ExtractionResult{DomainError: "not a receipt"},
	}
	app := newAnalyzeApp(NewReceiptHandler(store, analyzer, "sk-fallback", zap.NewNop()), uuid.New())

	body, contentType := multipartBody(t, "cat.jpg", []byte{3, 4}, nil)
	req := httptest.NewRequest(http.MethodPost, "/receipts/analyze", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, store.created, "nothing may be persisted on a domain error")
}
