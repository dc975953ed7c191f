package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/shopspring/decimal"
)

const driverName = "sqlite3"

// SQLiteStore persists the marketplace in a single SQLite database. Every
// transaction is opened with BEGIN IMMEDIATE so concurrent settlements
// serialize on the write lock instead of failing at commit.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.Repository = (*SQLiteStore)(nil)

func dsn(cfg config.StorageConfig) string {
	d := fmt.Sprintf("%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.Path != ":memory:" {
		d += "&_journal_mode=WAL"
	}
	return d
}

func NewSQLiteStore(ctx context.Context, cfg config.StorageConfig) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns < 1 || cfg.Path == ":memory:" {
		// every :memory: connection is its own database
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	pingCtx := ctx
	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateListing(ctx context.Context, listing *domain.ResidueListing) error {
	if listing.Version == 0 {
		listing.Version = 1
	}

	query := builder().Insert(tableListings).
		Columns(listingColumns...).
		Values(
			listing.ID, listing.FarmerID, listing.PanchayatID, string(listing.CropType),
			string(listing.DisposalMethod), listing.Quantity, listing.OriginalQuantity,
			listing.PricePerUnit, string(listing.Status), string(listing.VerificationStatus),
			listing.Version, listing.CreatedAt.UTC(), listing.UpdatedAt.UTC(),
		)

	if _, err := execx(ctx, s.db, query); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}

	return nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*domain.ResidueListing, error) {
	query, args, err := builder().Select(listingColumns...).
		From(tableListings).
		Where(sq.Eq{"id": listingID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	l, err := scanListing(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	return &l, nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.ResidueListing, error) {
	return selectListings(ctx, s.db, listingFilterQuery(filter))
}

func (s *SQLiteStore) UpdateVerification(ctx context.Context, listingID string, from, to domain.VerificationStatus) error {
	query := builder().Update(tableListings).
		Set("verification_status", string(to)).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", s.now().UTC()).
		Where(sq.Eq{"id": listingID, "verification_status": string(from)})

	res, err := execx(ctx, s.db, query)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	current, err := s.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: listing is %s", domain.ErrInvalidTransition, current.VerificationStatus)
}

func (s *SQLiteStore) GetPurchase(ctx context.Context, purchaseID string) (*domain.BulkPurchase, error) {
	query, args, err := builder().Select(purchaseColumns...).
		From(tablePurchases).
		Where(sq.Eq{"id": purchaseID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	p, err := scanPurchase(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	return &p, nil
}

func (s *SQLiteStore) ListPurchasesByBuyer(ctx context.Context, buyerID string) ([]domain.BulkPurchase, error) {
	query, args, err := builder().Select(purchaseColumns...).
		From(tablePurchases).
		Where(sq.Eq{"buyer_id": buyerID}).
		OrderBy("created_at DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	result := []domain.BulkPurchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		result = append(result, p)
	}

	return result, wrapErr(rows.Err())
}

func (s *SQLiteStore) ListDistributions(ctx context.Context, purchaseID string) ([]domain.FarmerPaymentDistribution, error) {
	query, args, err := builder().Select(distributionColumns...).
		From(tableDistributions).
		Where(sq.Eq{"purchase_id": purchaseID}).
		OrderBy("rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	result := []domain.FarmerPaymentDistribution{}
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		result = append(result, d)
	}

	return result, wrapErr(rows.Err())
}

func (s *SQLiteStore) RecordNotifications(ctx context.Context, eventID string, notifications []domain.Notification) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback()

	mark := builder().Insert(tableProcessedEvents).
		Columns("event_id", "processed_at").
		Values(eventID, s.now().UTC())
	if _, err := execx(ctx, tx, mark); err != nil {
		if isConstraintErr(err) {
			return domain.ErrDuplicateEvent
		}
		return fmt.Errorf("mark event processed: %w", err)
	}

	if len(notifications) > 0 {
		insert := builder().Insert(tableNotifications).Columns(notificationColumns...)
		for _, n := range notifications {
			insert = insert.Values(n.ID, n.FarmerID, n.PurchaseID, n.ListingID, n.Amount, n.Message, n.CreatedAt.UTC())
		}
		if _, err := execx(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
	}

	return wrapErr(tx.Commit())
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, farmerID string) ([]domain.Notification, error) {
	query, args, err := builder().Select(notificationColumns...).
		From(tableNotifications).
		Where(sq.Eq{"farmer_id": farmerID}).
		OrderBy("created_at DESC", "rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	result := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}

	return result, wrapErr(rows.Err())
}

func (s *SQLiteStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	query, args, err := builder().Select("COUNT(1)").
		From(tableProcessedEvents).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, wrapErr(err)
	}

	return count > 0, nil
}

// WithinTx commits only if fn returns nil; any error rolls everything back.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx domain.SettlementTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", wrapErr(err))
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", wrapErr(err))
	}

	return nil
}

type sqliteTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqliteTx) LockEligibleListings(ctx context.Context, key domain.OfferKey) ([]domain.ResidueListing, error) {
	listings, err := selectListings(ctx, t.tx, listingFilterQuery(domain.EligibleFilter(&key)))
	if err != nil {
		return nil, err
	}

	eligible := listings[:0]
	for _, l := range listings {
		if l.Eligible() {
			eligible = append(eligible, l)
		}
	}

	return eligible, nil
}

func (t *sqliteTx) InsertPurchase(ctx context.Context, p *domain.BulkPurchase) error {
	query := builder().Insert(tablePurchases).
		Columns(purchaseColumns...).
		Values(
			p.ID, p.BuyerID, p.PanchayatID, string(p.CropType), string(p.DisposalMethod),
			p.TotalQuantity, p.TotalAmount, p.AvgPricePerUnit, string(p.PaymentStatus),
			p.ListingCount, p.CreatedAt.UTC(), nullTime(p.CompletedAt),
		)

	_, err := execx(ctx, t.tx, query)
	return err
}

func (t *sqliteTx) CompletePurchase(ctx context.Context, p *domain.BulkPurchase) error {
	query := builder().Update(tablePurchases).
		Set("payment_status", string(p.PaymentStatus)).
		Set("completed_at", nullTime(p.CompletedAt)).
		Where(sq.Eq{"id": p.ID}).
		Where(sq.NotEq{"payment_status": []string{
			string(domain.PaymentStatusCompleted),
			string(domain.PaymentStatusFailed),
		}})

	res, err := execx(ctx, t.tx, query)
	if err != nil {
		return err
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: purchase %s is missing or already terminal", domain.ErrInvalidTransition, p.ID)
	}

	return nil
}

func (t *sqliteTx) InsertDistribution(ctx context.Context, d *domain.FarmerPaymentDistribution) error {
	query := builder().Insert(tableDistributions).
		Columns(distributionColumns...).
		Values(
			d.ID, d.PurchaseID, d.ListingID, d.FarmerID, d.QuantityTons,
			d.PricePerTon, d.PaymentAmount, string(d.PaymentStatus), d.CreatedAt.UTC(),
		)

	_, err := execx(ctx, t.tx, query)
	return err
}

func (t *sqliteTx) ConsumeListing(ctx context.Context, listingID string, expectedVersion int64, remaining decimal.Decimal, status domain.ListingStatus) error {
	if remaining.IsNegative() {
		return fmt.Errorf("%w: remaining quantity would be negative", domain.ErrValidation)
	}

	query := builder().Update(tableListings).
		Set("quantity", remaining).
		Set("status", string(status)).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", t.now().UTC()).
		Where(sq.Eq{
			"id":      listingID,
			"version": expectedVersion,
			"status":  string(domain.ListingStatusAvailable),
		})

	res, err := execx(ctx, t.tx, query)
	if err != nil {
		return err
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConcurrencyConflict
	}

	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
