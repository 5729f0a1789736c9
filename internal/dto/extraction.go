package dto

// ExtractedReceipt is the structured payload the extraction model returns.
// Every field is optional: the model fills what it can read off the image.
// A populated Error means the provider understood the request but could not
// treat the input as a receipt ("not a receipt", "image unreadable", ...).
type ExtractedReceipt struct {
	Error         string          `json:"error,omitempty"`
	StoreName     string          `json:"store_name"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Subtotal      *float64        `json:"subtotal"`
	TaxAmount     *float64        `json:"tax"`
	TotalAmount   *float64        `json:"total"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Items         []ExtractedItem `json:"items"`
}

type ExtractedItem struct {
	Name       string   `json:"name"`
	Quantity   float64  `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price"`
	TotalPrice *float64 `json:"total_price"`
	Category   string   `json:"category"`
}

// ExtractionResult is the decoded outcome of one bridge call. Exactly one of
// Receipt / DomainError is set; a decode failure is reported as an error by
// the decoder instead, so callers see three distinct outcomes.
type ExtractionResult struct {
	Receipt     *ExtractedReceipt
	DomainError string
}
