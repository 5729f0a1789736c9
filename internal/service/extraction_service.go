package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/dto"
	"github.com/ShirakawaMio/Bill-Scan-Bot/pkg/config"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

//go:embed receipt_schema.json
var receiptSchemaJSON string

const extractionSystemPrompt = `You are a receipt extraction engine. Given a photo of a shopping receipt or a
textual description of a purchase, respond with a single JSON object:
{"store_name": string, "date": "YYYY-MM-DD", "time": "HH:MM", "subtotal": number,
"tax": number, "total": number, "currency": "ISO 4217 code", "payment_method": string,
"items": [{"name": string, "quantity": number, "unit_price": number, "total_price": number, "category": string}]}
Use the category "deposit" for refundable bottle or container deposits.
Omit or null any field you cannot read. If the input is not a receipt or the
image is unreadable, respond with {"error": "<short reason>"} instead.
Respond with JSON only, no markdown and no commentary.`

// ExtractionService calls an OpenAI-compatible multimodal endpoint and turns
// the returned text into a three-way outcome: a decode failure, a provider
// reported domain error, or a structured receipt.
type ExtractionService struct {
	cfg    *config.OpenAIConfig
	http   *http.Client
	schema *gojsonschema.Schema
	logger *zap.Logger
}

func NewExtractionService(cfg *config.OpenAIConfig, logger *zap.Logger) (*ExtractionService, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(receiptSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to compile receipt schema: %w", err)
	}

	return &ExtractionService{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		schema: schema,
		logger: logger,
	}, nil
}

// AnalyzeImage sends a base64 data URI to the vision model and returns the
// raw JSON text of the completion.
func (s *ExtractionService) AnalyzeImage(ctx context.Context, dataURI, apiKey string) (string, error) {
	userContent := []map[string]any{
		{"type": "text", "text": "Extract this receipt."},
		{"type": "image_url", "image_url": map[string]string{"url": dataURI}},
	}
	return s.complete(ctx, apiKey, userContent)
}

// AnalyzeText quotes a free-form expense description into the extraction
// instruction and returns the raw JSON text of the completion.
func (s *ExtractionService) AnalyzeText(ctx context.Context, text, apiKey string) (string, error) {
	instruction := fmt.Sprintf("Extract a receipt from this expense description: %q", text)
	return s.complete(ctx, apiKey, instruction)
}

func (s *ExtractionService) complete(ctx context.Context, apiKey string, userContent any) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("extraction credential missing")
	}

	body := map[string]any{
		"model":           s.cfg.Model,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": extractionSystemPrompt},
			{"role": "user", "content": userContent},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		s.logger.Warn("Extraction request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", b),
		)
		return "", fmt.Errorf("extraction provider returned status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// ImageDataURI wraps image bytes for the vision API. Content type is decided
// by file extension: PNG stays PNG, everything else is treated as JPEG.
func ImageDataURI(filePath string, data []byte) string {
	contentType := "image/jpeg"
	if strings.ToLower(filepath.Ext(filePath)) == ".png" {
		contentType = "image/png"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode validates and parses raw extraction output. A non-nil error means
// the payload was malformed (not JSON, or JSON of the wrong shape); otherwise
// the result carries either a receipt or a provider-reported domain error.
func (s *ExtractionService) Decode(raw string) (*dto.ExtractionResult, error) {
	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("extraction payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("extraction payload does not match the receipt shape: %s", result.Errors()[0])
	}

	var extracted dto.ExtractedReceipt
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return nil, fmt.Errorf("extraction payload is not valid JSON: %w", err)
	}

	if extracted.Error != "" {
		return &dto.ExtractionResult{DomainError: extracted.Error}, nil
	}
	return &dto.ExtractionResult{Receipt: &extracted}, nil
}
