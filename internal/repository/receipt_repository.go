package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/dto"
	"github.com/ShirakawaMio/Bill-Scan-Bot/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var receiptColumns = []string{
	"id", "store_name", "purchase_date", "purchase_time",
	"subtotal", "tax_amount", "total_amount", "currency",
	"payment_method", "raw_payload", "created_at",
}

var itemColumns = []string{
	"id", "receipt_id", "position", "name",
	"quantity", "unit_price", "total_price", "category",
}

type ReceiptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// CreateForUser persists an extraction result as a receipt with its line
// items and links it to the user, all in one transaction.
func (r *ReceiptRepository) CreateForUser(ctx context.Context, userID uuid.UUID, extracted *dto.ExtractedReceipt, notes string, raw []byte) (*models.UserReceipt, error) {
	receipt, items := buildReceipt(extracted, raw)
	addedAt := time.Now().UTC()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	insertReceipt := squirrel.Insert("receipts").
		Columns(receiptColumns...).
		Values(
			receipt.ID, receipt.StoreName, receipt.PurchaseDate, receipt.PurchaseTime,
			receipt.Subtotal, receipt.TaxAmount, receipt.TotalAmount, receipt.Currency,
			receipt.PaymentMethod, receipt.RawPayload, receipt.CreatedAt,
		).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := insertReceipt.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}

	if len(items) > 0 {
		insertItems := squirrel.Insert("receipt_items").
			Columns(itemColumns...).
			PlaceholderFormat(squirrel.Dollar)
		for _, item := range items {
			insertItems = insertItems.Values(
				item.ID, item.ReceiptID, item.Position, item.Name,
				item.Quantity, item.UnitPrice, item.TotalPrice, item.Category,
			)
		}
		sql, args, err = insertItems.ToSql()
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return nil, err
		}
	}

	insertLink := squirrel.Insert("user_receipts").
		Columns("user_id", "receipt_id", "added_at", "notes").
		Values(userID, receipt.ID, addedAt, notes).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err = insertLink.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.UserReceipt{
		Receipt: *receipt,
		Items:   items,
		AddedAt: addedAt,
		Notes:   notes,
	}, nil
}

// ListForUser returns the user's receipts with items, newest link first.
func (r *ReceiptRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.UserReceipt, error) {
	query := squirrel.Select(
		"r.id", "r.store_name", "r.purchase_date", "r.purchase_time",
		"r.subtotal", "r.tax_amount", "r.total_amount", "r.currency",
		"r.payment_method", "r.raw_payload", "r.created_at",
		"ur.added_at", "ur.notes",
	).
		From("receipts r").
		Join("user_receipts ur ON ur.receipt_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("ur.added_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.UserReceipt
	for rows.Next() {
		var ur models.UserReceipt
		if err := rows.Scan(
			&ur.ID, &ur.StoreName, &ur.PurchaseDate, &ur.PurchaseTime,
			&ur.Subtotal, &ur.TaxAmount, &ur.TotalAmount, &ur.Currency,
			&ur.PaymentMethod, &ur.RawPayload, &ur.CreatedAt,
			&ur.AddedAt, &ur.Notes,
		); err != nil {
			return nil, err
		}
		receipts = append(receipts, &ur)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, receipts); err != nil {
		return nil, err
	}

	return receipts, nil
}

// GetForUser fetches one linked receipt with items, or ErrNotFound when the
// user has no link to it.
func (r *ReceiptRepository) GetForUser(ctx context.Context, userID, receiptID uuid.UUID) (*models.UserReceipt, error) {
	query := squirrel.Select(
		"r.id", "r.store_name", "r.purchase_date", "r.purchase_time",
		"r.subtotal", "r.tax_amount", "r.total_amount", "r.currency",
		"r.payment_method", "r.raw_payload", "r.created_at",
		"ur.added_at", "ur.notes",
	).
		From("receipts r").
		Join("user_receipts ur ON ur.receipt_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID, "r.id": receiptID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var ur models.UserReceipt
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&ur.ID, &ur.StoreName, &ur.PurchaseDate, &ur.PurchaseTime,
		&ur.Subtotal, &ur.TaxAmount, &ur.TotalAmount, &ur.Currency,
		&ur.PaymentMethod, &ur.RawPayload, &ur.CreatedAt,
		&ur.AddedAt, &ur.Notes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.attachItems(ctx, []*models.UserReceipt{&ur}); err != nil {
		return nil, err
	}
	return &ur, nil
}

// Unlink removes the ownership link between a user and a receipt. It reports
// whether a link existed.
func (r *ReceiptRepository) Unlink(ctx context.Context, userID, receiptID uuid.UUID) (bool, error) {
	query := squirrel.Delete("user_receipts").
		Where(squirrel.Eq{"user_id": userID, "receipt_id": receiptID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a receipt. Line items and remaining ownership links go with
// it via cascade.
func (r *ReceiptRepository) Delete(ctx context.Context, receiptID uuid.UUID) (bool, error) {
	query := squirrel.Delete("receipts").
		Where(squirrel.Eq{"id": receiptID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StatsForUser aggregates over the user's linked receipts. COALESCE keeps all
// three values at zero for an empty account.
func (r *ReceiptRepository) StatsForUser(ctx context.Context, userID uuid.UUID) (*models.ReceiptStats, error) {
	query := squirrel.Select(
		"COUNT(r.id)",
		"COALESCE(SUM(r.total_amount), 0)",
		"COALESCE(AVG(r.total_amount), 0)",
	).
		From("receipts r").
		Join("user_receipts ur ON ur.receipt_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var stats models.ReceiptStats
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&stats.Count, &stats.Total, &stats.Mean); err != nil {
		return nil, err
	}

	return &stats, nil
}

func (r *ReceiptRepository) attachItems(ctx context.Context, receipts []*models.UserReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(receipts))
	byID := make(map[uuid.UUID]*models.UserReceipt, len(receipts))
	for _, ur := range receipts {
		ids = append(ids, ur.ID)
		byID[ur.ID] = ur
	}

	query := squirrel.Select(itemColumns...).
		From("receipt_items").
		Where(squirrel.Eq{"receipt_id": ids}).
		OrderBy("receipt_id", "position").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.ReceiptItem
		if err := rows.Scan(
			&item.ID, &item.ReceiptID, &item.Position, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.Category,
		); err != nil {
			return err
		}
		if ur, ok := byID[item.ReceiptID]; ok {
			ur.Items = append(ur.Items, item)
		}
	}
	return rows.Err()
}

func buildReceipt(extracted *dto.ExtractedReceipt, raw []byte) (*models.Receipt, []models.ReceiptItem) {
	receipt := &models.Receipt{
		ID:            uuid.New(),
		StoreName:     extracted.StoreName,
		PurchaseDate:  extracted.Date,
		PurchaseTime:  extracted.Time,
		Subtotal:      extracted.Subtotal,
		TaxAmount:     extracted.TaxAmount,
		TotalAmount:   extracted.TotalAmount,
		Currency:      extracted.Currency,
		PaymentMethod: extracted.PaymentMethod,
		RawPayload:    raw,
		CreatedAt:     time.Now().UTC(),
	}

	items := make([]models.ReceiptItem, 0, len(extracted.Items))
	for i, it := range extracted.Items {
		quantity := it.Quantity
		if quantity == 0 {
			quantity = 1
		}
		items = append(items, models.ReceiptItem{
			ID:         uuid.New(),
			ReceiptID:  receipt.ID,
			Position:   i,
			Name:       it.Name,
			Quantity:   quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			Category:   it.Category,
		})
	}

	return receipt, items
}
