package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CategoryDeposit marks a refundable deposit line (bottle deposit etc.).
const CategoryDeposit = "deposit"

type Receipt struct {
	ID            uuid.UUID `db:"id"`
	StoreName     string    `db:"store_name"`
	PurchaseDate  string    `db:"purchase_date"`
	PurchaseTime  string    `db:"purchase_time"`
	Subtotal      *float64  `db:"subtotal"`
	TaxAmount     *float64  `db:"tax_amount"`
	TotalAmount   *float64  `db:"total_amount"`
	Currency      string    `db:"currency"`
	PaymentMethod string    `db:"payment_method"`
	RawPayload    []byte    `db:"raw_payload"`
	CreatedAt     time.Time `db:"created_at"`
}

type ReceiptItem struct {
	ID         uuid.UUID `db:"id"`
	ReceiptID  uuid.UUID `db:"receipt_id"`
	Position   int       `db:"position"`
	Name       string    `db:"name"`
	Quantity   float64   `db:"quantity"`
	UnitPrice  *float64  `db:"unit_price"`
	TotalPrice *float64  `db:"total_price"`
	Category   string    `db:"category"`
}

// UserReceipt is a receipt together with its ownership link details.
type UserReceipt struct {
	Receipt
	Items   []ReceiptItem
	AddedAt time.Time
	Notes   string
}

type ReceiptStats struct {
	Count int64
	Total float64
	Mean  float64
}

// ShortID returns the 8-character hex handle shown to chat users.
func (r *Receipt) ShortID() string {
	return hexID(r.ID)[:8]
}

// MatchesIDPrefix reports whether the receipt id starts with the given
// case-insensitive hex prefix. Dashes in the canonical UUID form are ignored
// so prefixes longer than 8 characters still match.
func (r *Receipt) MatchesIDPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(hexID(r.ID), strings.ToLower(prefix))
}

func hexID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
