// Package ledger defines the append-only usage record for coupons and
// promotions. Entries are written exactly once per successful order placement
// and never mutated; they back the per-customer and global usage limit checks.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrLimitReached is returned by ReserveUsage when the parent's usage limit
// is already exhausted at commit time. Callers must drop the discount source
// and re-price rather than overshoot the limit.
var ErrLimitReached = errors.New("usage limit reached")

// Source identifies which kind of discount parent a ledger entry belongs to.
type Source string

const (
	SourceCoupon    Source = "coupon"
	SourcePromotion Source = "promotion"
)

// Entry is a single usage record. CustomerID is empty for guest checkouts.
type Entry struct {
	ID             uuid.UUID
	Source         Source
	ParentID       int64
	CustomerID     string
	OrderID        uuid.UUID
	DiscountAmount decimal.Decimal
	OrderSubtotal  decimal.Decimal
	UsedAt         time.Time
}

// Reservation is the input to ReserveUsage.
type Reservation struct {
	Source         Source
	ParentID       int64
	CustomerID     string
	OrderID        uuid.UUID
	DiscountAmount decimal.Decimal
	OrderSubtotal  decimal.Decimal
}

// Ledger records and counts discount usage.
type Ledger interface {
	// ReserveUsage inserts a ledger entry and increments the parent
	// coupon/promotion usage counter in a single transaction, re-checking the
	// usage limit under a row lock. Returns ErrLimitReached when the limit is
	// exhausted; in that case nothing is written.
	ReserveUsage(ctx context.Context, r Reservation) (*Entry, error)

	// CountByCustomer returns how many entries exist for the given parent and
	// customer. Used for per-customer limit checks.
	CountByCustomer(ctx context.Context, source Source, parentID int64, customerID string) (int, error)
}
