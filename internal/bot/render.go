package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"
)

// renderReceipt produces the fixed chat template for one receipt: title,
// date/time, item lines, subtotal/tax, bold total, payment method. Missing
// header fields fall back to placeholder text; the item list and the payment
// line are omitted entirely when absent.
func renderReceipt(r *models.Receipt, items []models.ReceiptItem) string {
	var b strings.Builder

	store := r.StoreName
	if store == "" {
		store = "unknown store"
	}
	fmt.Fprintf(&b, "🧾 *%s*\n", escapeMarkdown(store))

	date := r.PurchaseDate
	if date == "" {
		date = "unknown date"
	}
	b.WriteString(date)
	if r.PurchaseTime != "" {
		b.WriteString(" " + r.PurchaseTime)
	}
	b.WriteString("\n")

	if len(items) > 0 {
		b.WriteString("\n")
		for _, item := range items {
			fmt.Fprintf(&b, "• %s ×%s", escapeMarkdown(item.Name), fmtQuantity(item.Quantity))
			if item.TotalPrice != nil {
				b.WriteString(" " + fmtAmount(*item.TotalPrice))
			}
			if item.Category == models.CategoryDeposit {
				b.WriteString(" (deposit)")
			}
			b.WriteString("\n")
		}
	}

	if r.Subtotal != nil || r.TaxAmount != nil {
		b.WriteString("\n")
		if r.Subtotal != nil {
			fmt.Fprintf(&b, "Subtotal: %s", fmtAmount(*r.Subtotal))
		}
		if r.Subtotal != nil && r.TaxAmount != nil {
			b.WriteString("  ")
		}
		if r.TaxAmount != nil {
			fmt.Fprintf(&b, "Tax: %s", fmtAmount(*r.TaxAmount))
		}
		b.WriteString("\n")
	}

	total := "unknown"
	if r.TotalAmount != nil {
		total = fmtAmount(*r.TotalAmount)
		if r.Currency != "" {
			total += " " + r.Currency
		}
	}
	fmt.Fprintf(&b, "*Total: %s*", total)

	if r.PaymentMethod != "" {
		fmt.Fprintf(&b, "\nPaid with: %s", escapeMarkdown(r.PaymentMethod))
	}

	return b.String()
}

// renderHistory lists up to limit receipts, newest link first, each with its
// tappable short id.
func renderHistory(receipts []*models.UserReceipt, limit int) string {
	if len(receipts) > limit {
		receipts = receipts[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your last %d receipts:\n", len(receipts))
	for _, ur := range receipts {
		store := ur.StoreName
		if store == "" {
			store = "unknown store"
		}
		date := ur.PurchaseDate
		if date == "" {
			date = "unknown date"
		}
		total := "unknown"
		if ur.TotalAmount != nil {
			total = fmtAmount(*ur.TotalAmount)
			if ur.Currency != "" {
				total += " " + ur.Currency
			}
		}
		fmt.Fprintf(&b, "/receipt\\_%s %s %s — %s\n", ur.ShortID(), date, escapeMarkdown(store), total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStats(stats *models.ReceiptStats) string {
	return fmt.Sprintf(
		"You have %d receipts.\nTotal spent: %s\nAverage receipt: %s",
		stats.Count, fmtAmount(stats.Total), fmtAmount(stats.Mean),
	)
}

func fmtAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeMarkdown neutralizes the legacy Telegram Markdown control characters
// in user- or model-supplied values.
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
