package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/mattn/go-sqlite3"
)

const (
	tableListings        = "residue_listings"
	tablePurchases       = "bulk_purchases"
	tableDistributions   = "farmer_payment_distributions"
	tableNotifications   = "notifications"
	tableProcessedEvents = "processed_events"
)

var (
	listingColumns = []string{
		"id", "farmer_id", "panchayat_id", "crop_type", "disposal_method",
		"quantity", "original_quantity", "price_per_unit", "status",
		"verification_status", "version", "created_at", "updated_at",
	}
	purchaseColumns = []string{
		"id", "buyer_id", "panchayat_id", "crop_type", "disposal_method",
		"total_quantity", "total_amount", "avg_price_per_unit", "payment_status",
		"listing_count", "created_at", "completed_at",
	}
	distributionColumns = []string{
		"id", "purchase_id", "listing_id", "farmer_id", "quantity_tons",
		"price_per_ton", "payment_amount", "payment_status", "created_at",
	}
	notificationColumns = []string{
		"id", "farmer_id", "purchase_id", "listing_id", "amount", "message", "created_at",
	}
)

// Decimals are stored as TEXT so SQLite never coerces them to floating point.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS residue_listings (
		id                  TEXT PRIMARY KEY,
		farmer_id           TEXT NOT NULL,
		panchayat_id        TEXT NOT NULL,
		crop_type           TEXT NOT NULL,
		disposal_method     TEXT NOT NULL,
		quantity            TEXT NOT NULL CHECK (CAST(quantity AS REAL) >= 0),
		original_quantity   TEXT NOT NULL,
		price_per_unit      TEXT,
		status              TEXT NOT NULL DEFAULT 'available',
		verification_status TEXT NOT NULL DEFAULT 'pending',
		version             INTEGER NOT NULL DEFAULT 1,
		created_at          TIMESTAMP NOT NULL,
		updated_at          TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_offer
		ON residue_listings (panchayat_id, crop_type, disposal_method, status, verification_status)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_farmer ON residue_listings (farmer_id)`,
	`CREATE TABLE IF NOT EXISTS bulk_purchases (
		id                 TEXT PRIMARY KEY,
		buyer_id           TEXT NOT NULL,
		panchayat_id       TEXT NOT NULL,
		crop_type          TEXT NOT NULL,
		disposal_method    TEXT NOT NULL,
		total_quantity     TEXT NOT NULL,
		total_amount       TEXT NOT NULL,
		avg_price_per_unit TEXT NOT NULL,
		payment_status     TEXT NOT NULL,
		listing_count      INTEGER NOT NULL,
		created_at         TIMESTAMP NOT NULL,
		completed_at       TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON bulk_purchases (buyer_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS farmer_payment_distributions (
		id             TEXT PRIMARY KEY,
		purchase_id    TEXT NOT NULL REFERENCES bulk_purchases (id),
		listing_id     TEXT NOT NULL REFERENCES residue_listings (id),
		farmer_id      TEXT NOT NULL,
		quantity_tons  TEXT NOT NULL,
		price_per_ton  TEXT NOT NULL,
		payment_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		UNIQUE (purchase_id, listing_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id          TEXT PRIMARY KEY,
		farmer_id   TEXT NOT NULL,
		purchase_id TEXT NOT NULL,
		listing_id  TEXT NOT NULL,
		amount      TEXT NOT NULL,
		message     TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_farmer ON notifications (farmer_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT PRIMARY KEY,
		processed_at TIMESTAMP NOT NULL
	)`,
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// wrapErr turns lock contention into a retryable conflict.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
		}
	}

	return err
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func execx(ctx context.Context, q queryer, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	return res, wrapErr(err)
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanListing(row rowScanner) (domain.ResidueListing, error) {
	var l domain.ResidueListing
	err := row.Scan(
		&l.ID, &l.FarmerID, &l.PanchayatID, &l.CropType, &l.DisposalMethod,
		&l.Quantity, &l.OriginalQuantity, &l.PricePerUnit, &l.Status,
		&l.VerificationStatus, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

func selectListings(ctx context.Context, q queryer, b sq.SelectBuilder) ([]domain.ResidueListing, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	result := []domain.ResidueListing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		result = append(result, l)
	}

	return result, wrapErr(rows.Err())
}

func listingFilterQuery(filter domain.ListingFilter) sq.SelectBuilder {
	query := builder().Select(listingColumns...).From(tableListings)

	eq := sq.Eq{}
	if filter.FarmerID != "" {
		eq["farmer_id"] = filter.FarmerID
	}
	if filter.PanchayatID != "" {
		eq["panchayat_id"] = filter.PanchayatID
	}
	if filter.CropType != "" {
		eq["crop_type"] = string(filter.CropType)
	}
	if filter.DisposalMethod != "" {
		eq["disposal_method"] = string(filter.DisposalMethod)
	}
	if filter.Status != "" {
		eq["status"] = string(filter.Status)
	}
	if filter.VerificationStatus != "" {
		eq["verification_status"] = string(filter.VerificationStatus)
	}
	if len(eq) > 0 {
		query = query.Where(eq)
	}

	return query.OrderBy("created_at ASC", "id ASC")
}

func scanPurchase(row rowScanner) (domain.BulkPurchase, error) {
	var (
		p           domain.BulkPurchase
		completedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.BuyerID, &p.PanchayatID, &p.CropType, &p.DisposalMethod,
		&p.TotalQuantity, &p.TotalAmount, &p.AvgPricePerUnit, &p.PaymentStatus,
		&p.ListingCount, &p.CreatedAt, &completedAt,
	)
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return p, err
}

func scanDistribution(row rowScanner) (domain.FarmerPaymentDistribution, error) {
	var d domain.FarmerPaymentDistribution
	err := row.Scan(
		&d.ID, &d.PurchaseID, &d.ListingID, &d.FarmerID, &d.QuantityTons,
		&d.PricePerTon, &d.PaymentAmount, &d.PaymentStatus, &d.CreatedAt,
	)
	return d, err
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.FarmerID, &n.PurchaseID, &n.ListingID, &n.Amount, &n.Message, &n.CreatedAt,
	)
	return n, err
}
