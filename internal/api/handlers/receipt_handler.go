package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/dto"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/repository"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReceiptStore is the persistence contract the REST surface consumes.
type ReceiptStore interface {
	CreateForUser(ctx context.Context, userID uuid.UUID, extracted *dto.ExtractedReceipt, notes string, raw []byte) (*models.UserReceipt, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.UserReceipt, error)
	GetForUser(ctx context.Context, userID, receiptID uuid.UUID) (*models.UserReceipt, error)
	Unlink(ctx context.Context, userID, receiptID uuid.UUID) (bool, error)
	Delete(ctx context.Context, receiptID uuid.UUID) (bool, error)
	StatsForUser(ctx context.Context, userID uuid.UUID) (*models.ReceiptStats, error)
}

// Analyzer is the AI bridge plus its decode step.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, dataURI, apiKey string) (string, error)
	AnalyzeText(ctx context.Context, text, apiKey string) (string, error)
	Decode(raw string) (*dto.ExtractionResult, error)
}

type ReceiptHandler struct {
	receipts    ReceiptStore
	extract     Analyzer
	fallbackKey string
	logger      *zap.Logger
}

func NewReceiptHandler(receipts ReceiptStore, extract Analyzer, fallbackKey string, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		receipts:    receipts,
		extract:     extract,
		fallbackKey: fallbackKey,
		logger:      logger,
	}
}

func (h *ReceiptHandler) List(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	receipts, err := h.receipts.ListForUser(c.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list receipts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list receipts",
		})
	}

	resp := make([]dto.ReceiptResponse, 0, len(receipts))
	for _, ur := range receipts {
		resp = append(resp, toReceiptResponse(ur))
	}
	return c.JSON(resp)
}

func (h *ReceiptHandler) Get(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid receipt ID",
		})
	}

	ur, err := h.receipts.GetForUser(c.Context(), userID, receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Receipt not found",
			})
		}
		h.logger.Error("Failed to get receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get receipt",
		})
	}

	return c.JSON(toReceiptResponse(ur))
}

func (h *ReceiptHandler) Delete(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid receipt ID",
		})
	}

	// Unlink first so the link never outlives the receipt it points at.
	unlinked, err := h.receipts.Unlink(c.Context(), userID, receiptID)
	if err != nil {
		h.logger.Error("Failed to unlink receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete receipt",
		})
	}
	if !unlinked {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Receipt not found",
		})
	}
	if _, err := h.receipts.Delete(c.Context(), receiptID); err != nil {
		h.logger.Error("Failed to delete receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete receipt",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReceiptHandler) Stats(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	stats, err := h.receipts.StatsForUser(c.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to compute stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	return c.JSON(dto.ReceiptStatsResponse{
		Count: stats.Count,
		Total: stats.Total,
		Mean:  stats.Mean,
	})
}

// Analyze runs either a free-form expense description (JSON body) or an
// uploaded receipt photo (multipart field "image", optional "notes") through
// the extraction bridge and persists the result. The caller may supply their
// own key via the X-OpenAI-Key header; otherwise the global fallback is used.
func (h *ReceiptHandler) Analyze(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	key := c.Get("X-OpenAI-Key")
	if key == "" {
		key = h.fallbackKey
	}
	if key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No extraction credential configured",
		})
	}

	var raw string
	var notes string
	if file, ferr := c.FormFile("image"); ferr == nil {
		data, rerr := readUpload(file)
		if rerr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid image upload",
			})
		}
		notes = c.FormValue("notes")
		raw, err = h.extract.AnalyzeImage(c.Context(), service.ImageDataURI(file.Filename, data), key)
	} else {
		var req dto.AnalyzeTextRequest
		if perr := c.BodyParser(&req); perr != nil || strings.TrimSpace(req.Text) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Text or image is required",
			})
		}
		raw, err = h.extract.AnalyzeText(c.Context(), req.Text, key)
	}
	if err != nil {
		h.logger.Error("Extraction call failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Extraction service unavailable",
		})
	}

	result, err := h.extract.Decode(raw)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Extraction returned a malformed payload",
		})
	}
	if result.DomainError != "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": result.DomainError,
		})
	}

	saved, err := h.receipts.CreateForUser(c.Context(), userID, result.Receipt, notes, []byte(raw))
	if err != nil {
		h.logger.Error("Failed to persist receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to persist receipt",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toReceiptResponse(saved))
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("userID").(string)
	return uuid.Parse(raw)
}

func toReceiptResponse(ur *models.UserReceipt) dto.ReceiptResponse {
	items := make([]dto.ReceiptItemResponse, 0, len(ur.Items))
	for _, item := range ur.Items {
		items = append(items, dto.ReceiptItemResponse{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
			Category:   item.Category,
		})
	}

	return dto.ReceiptResponse{
		ID:            ur.ID.String(),
		StoreName:     ur.StoreName,
		PurchaseDate:  ur.PurchaseDate,
		PurchaseTime:  ur.PurchaseTime,
		Subtotal:      ur.Subtotal,
		TaxAmount:     ur.TaxAmount,
		TotalAmount:   ur.TotalAmount,
		Currency:      ur.Currency,
		PaymentMethod: ur.PaymentMethod,
		Notes:         ur.Notes,
		AddedAt:       ur.AddedAt.Format("2006-01-02T15:04:05Z07:00"),
		Items:         items,
	}
}
