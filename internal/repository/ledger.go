package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/commerce/internal/domain/checkout"
	"github.com/openkart/commerce/internal/domain/ledger"
)

const (
	lockCouponSQL = `SELECT usage_count, usage_limit_total
		FROM coupons WHERE id = $1 FOR UPDATE`
	incrementCouponSQL   = `UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`
	insertCouponUsageSQL = `INSERT INTO coupon_usages
		(id, coupon_id, customer_id, order_id, discount_amount, order_subtotal, used_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`
	countCouponUsageSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND customer_id = $2`

	lockPromotionSQL = `SELECT usage_count, usage_limit
		FROM promotions WHERE id = $1 FOR UPDATE`
	incrementPromotionSQL = `UPDATE promotions SET usage_count = usage_count + 1 WHERE id = $1`
	insertPromotionUsageSQL = `INSERT INTO promotion_usages
		(id, promotion_id, customer_id, order_id, discount_amount, order_subtotal, used_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`
	countPromotionUsageSQL = `SELECT COUNT(*) FROM promotion_usages
		WHERE promotion_id = $1 AND customer_id = $2`
)

var _ ledger.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements the usage ledger backed by PostgreSQL.
//
// ReserveUsage closes the check-then-act race on usage limits: the limit is
// re-checked under a row lock in the same transaction that writes the ledger
// entry and bumps the counter, so two concurrent checkouts can never both
// claim the last remaining use.
type LedgerRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool, now: time.Now}
}

// ReserveUsage inserts a ledger entry and increments the parent usage counter
// atomically. Returns ledger.ErrLimitReached when the parent's limit is
// exhausted; nothing is written in that case.
func (r *LedgerRepository) ReserveUsage(ctx context.Context, res ledger.Reservation) (*ledger.Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	entry, err := reserveUsageTx(ctx, tx, res, r.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return entry, nil
}

// reserveUsageTx performs the locked limit re-check, ledger insert, and
// counter increment inside tx. Shared with the placement transaction.
func reserveUsageTx(ctx context.Context, tx pgx.Tx, res ledger.Reservation, now time.Time) (*ledger.Entry, error) {
	var (
		lockSQL, incrementSQL, insertSQL string
	)
	switch res.Source {
	case ledger.SourceCoupon:
		lockSQL, incrementSQL, insertSQL = lockCouponSQL, incrementCouponSQL, insertCouponUsageSQL
	case ledger.SourcePromotion:
		lockSQL, incrementSQL, insertSQL = lockPromotionSQL, incrementPromotionSQL, insertPromotionUsageSQL
	default:
		return nil, errors.Errorf("unknown ledger source %q", res.Source)
	}

	var usageCount, usageLimit int
	if err := tx.QueryRow(ctx, lockSQL, res.ParentID).Scan(&usageCount, &usageLimit); err != nil {
		return nil, fmt.Errorf("locking %s %d: %w", res.Source, res.ParentID, err)
	}
	if usageLimit > 0 && usageCount >= usageLimit {
		return nil, errors.Wrapf(ledger.ErrLimitReached, "%s %d", res.Source, res.ParentID)
	}

	entry := &ledger.Entry{
		ID:             uuid.New(),
		Source:         res.Source,
		ParentID:       res.ParentID,
		CustomerID:     res.CustomerID,
		OrderID:        res.OrderID,
		DiscountAmount: res.DiscountAmount,
		OrderSubtotal:  res.OrderSubtotal,
		UsedAt:         now,
	}

	_, err := tx.Exec(ctx, insertSQL,
		entry.ID, entry.ParentID, entry.CustomerID, entry.OrderID,
		entry.DiscountAmount, entry.OrderSubtotal, entry.UsedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting %s usage: %w", res.Source, err)
	}

	if _, err := tx.Exec(ctx, incrementSQL, res.ParentID); err != nil {
		return nil, fmt.Errorf("incrementing %s %d usage count: %w", res.Source, res.ParentID, err)
	}
	return entry, nil
}

// CountByCustomer returns the number of ledger entries for a parent/customer
// pair. Guest usage (empty customer ID) is never counted against a customer.
func (r *LedgerRepository) CountByCustomer(ctx context.Context, source ledger.Source, parentID int64, customerID string) (int, error) {
	if customerID == "" {
		return 0, nil
	}

	countSQL := countCouponUsageSQL
	if source == ledger.SourcePromotion {
		countSQL = countPromotionUsageSQL
	}

	var count int
	if err := r.pool.QueryRow(ctx, countSQL, parentID, customerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s usage: %w", source, err)
	}
	return count, nil
}

var _ checkout.Placer = (*PlacementRepository)(nil)

// PlacementRepository persists a checkout placement — order, items, and all
// usage reservations — in a single transaction, so the stored discount
// breakdown and the usage counters can never disagree.
type PlacementRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPlacementRepository returns a PlacementRepository that uses the given pool.
func NewPlacementRepository(pool *pgxpool.Pool) *PlacementRepository {
	return &PlacementRepository{pool: pool, now: time.Now}
}

// Place writes the order and reserves usage for every applied discount
// source. A usage-limit conflict rolls everything back and returns
// checkout.LimitConflictError identifying the losing source.
func (r *PlacementRepository) Place(ctx context.Context, p checkout.Placement) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := insertOrderTx(ctx, tx, p.Order); err != nil {
		return err
	}

	now := r.now()
	for _, res := range p.Reservations {
		if _, err := reserveUsageTx(ctx, tx, res, now); err != nil {
			if errors.Is(err, ledger.ErrLimitReached) {
				return &checkout.LimitConflictError{Source: res.Source, ParentID: res.ParentID}
			}
			return err
		}
	}

	return tx.Commit(ctx)
}
