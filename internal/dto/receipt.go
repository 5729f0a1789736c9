package dto

type ReceiptItemResponse struct {
	Name       string   `json:"name"`
	Quantity   float64  `json:"quantity"`
	UnitPrice  *float64 `json:"unit_price,omitempty"`
	TotalPrice *float64 `json:"total_price,omitempty"`
	Category   string   `json:"category,omitempty"`
}

type ReceiptResponse struct {
	ID            string                `json:"id"`
	StoreName     string                `json:"store_name"`
	PurchaseDate  string                `json:"purchase_date"`
	PurchaseTime  string                `json:"purchase_time,omitempty"`
	Subtotal      *float64              `json:"subtotal,omitempty"`
	TaxAmount     *float64              `json:"tax_amount,omitempty"`
	TotalAmount   *float64              `json:"total_amount,omitempty"`
	Currency      string                `json:"currency,omitempty"`
	PaymentMethod string                `json:"payment_method,omitempty"`
	Notes         string                `json:"notes,omitempty"`
	AddedAt       string                `json:"added_at"`
	Items         []ReceiptItemResponse `json:"items"`
}

type ReceiptStatsResponse struct {
	Count int64   `json:"count"`
	Total float64 `json:"total"`
	Mean  float64 `json:"mean"`
}

type AnalyzeTextRequest struct {
	Text string `json:"text"`
}
