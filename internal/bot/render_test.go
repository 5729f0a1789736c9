package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
)

func TestRenderReceipt_Full(t *testing.T) {
	r := &models.Receipt{
		ID:            uuid.New(),
		StoreName:     "REWE Markt",
		PurchaseDate:  "2024-03-09",
		PurchaseTime:  "18:42",
		Subtotal:      ptr(12.50),
		TaxAmount:     ptr(0.90),
		TotalAmount:   ptr(13.40),
		Currency:      "EUR",
		PaymentMethod: "EC card",
	}
	items := []models.ReceiptItem{
		{Name: "Milk", Quantity: 2, TotalPrice: ptr(2.38)},
		{Name: "Pfand 0.25", Quantity: 1, TotalPrice: ptr(0.25), Category: models.CategoryDeposit},
	}

	out := renderReceipt(r, items)

	assert.Contains(t, out, "🧾 *REWE Markt*")
	assert.Contains(t, out, "2024-03-09 18:42")
	assert.Contains(t, out, "• Milk ×2 2.38")
	assert.Contains(t, out, "• Pfand 0.25 ×1 0.25 (deposit)")
	assert.Contains(t, out, "Subtotal: 12.50")
	assert.Contains(t, out, "Tax: 0.90")
	assert.Contains(t, out, "*Total: 13.40 EUR*")
	assert.Contains(t, out, "Paid with: EC card")
}

func TestRenderReceipt_MissingFields(t *testing.T) {
	out := renderReceipt(&models.Receipt{ID: uuid.New()}, nil)

	assert.Contains(t, out, "unknown store")
	assert.Contains(t, out, "unknown date")
	assert.Contains(t, out, "*Total: unknown*")
	assert.NotContains(t, out, "Subtotal")
	assert.NotContains(t, out, "Paid with")
	assert.NotContains(t, out, "•")
}

func TestRenderReceipt_EscapesStoreName(t *testing.T) {
	r := &models.Receipt{ID: uuid.New(), StoreName: "Bob_s *Shop*"}

	out := renderReceipt(r, nil)

	assert.Contains(t, out, `Bob\_s \*Shop\*`)
}

func TestRenderHistory(t *testing.T) {
	receipts := []*models.UserReceipt{
		{
			Receipt: models.Receipt{ID: uuid.New(), StoreName: "REWE", PurchaseDate: "2024-03-09", TotalAmount: ptr(13.40), Currency: "EUR"},
			AddedAt: time.Now(),
		},
		{
			Receipt: models.Receipt{ID: uuid.New()},
			AddedAt: time.Now().Add(-time.Hour),
		},
	}

	out := renderHistory(receipts, 10)
	lines := strings.Split(out, "\n")

	assert.Equal(t, "Your last 2 receipts:", lines[0])
	assert.Equal(t,
		"/receipt\\_"+receipts[0].ShortID()+" 2024-03-09 REWE — 13.40 EUR",
		lines[1],
	)
	assert.Contains(t, lines[2], "unknown date unknown store — unknown")
}

func TestRenderHistory_Truncates(t *testing.T) {
	var receipts []*models.UserReceipt
	for i := 0; i < 5; i++ {
		receipts = append(receipts, &models.UserReceipt{
			Receipt: models.Receipt{ID: uuid.New(), StoreName: "S", TotalAmount: ptr(1)},
		})
	}

	out := renderHistory(receipts, 3)

	assert.Contains(t, out, "Your last 3 receipts:")
	assert.Len(t, strings.Split(out, "\n"), 4)
}

func TestRenderStats(t *testing.T) {
	out := renderStats(&models.ReceiptStats{Count: 2, Total: 330, Mean: 165})

	assert.Equal(t, "You have 2 receipts.\nTotal spent: 330.00\nAverage receipt: 165.00", out)
}

func TestFmtQuantity(t *testing.T) {
	assert.Equal(t, "2", fmtQuantity(2))
	assert.Equal(t, "0.5", fmtQuantity(0.5))
	assert.Equal(t, "1.25", fmtQuantity(1.25))
}
