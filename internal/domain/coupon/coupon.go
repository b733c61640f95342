// Package coupon holds the coupon model and the ordered validation chain
// that decides whether a code can be applied to a given cart and customer.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the eligible subtotal,
	// optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount subtracts a fixed amount, capped at the eligible subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountFreeShipping waives the cart's shipping cost.
	DiscountFreeShipping DiscountType = "free_shipping"
	// DiscountBuyXGetY gives the cheapest GetQuantity units free per complete
	// group of BuyQuantity eligible units.
	DiscountBuyXGetY DiscountType = "buy_x_get_y"
	// DiscountFixedPrice sets an absolute final price for the eligible items.
	DiscountFixedPrice DiscountType = "fixed_price"
)

// ErrNotFound is returned by repositories when no active coupon matches a code.
var ErrNotFound = errors.New("coupon not found")

// TimeWindow restricts coupon use to a daily time-of-day interval, inclusive
// on both ends. Times are minutes since midnight in the server's location.
type TimeWindow struct {
	FromMinute  int
	UntilMinute int
}

// Contains reports whether t's time of day falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	return minute >= w.FromMinute && minute <= w.UntilMinute
}

// Coupon is the full coupon record as configured by the admin surface.
type Coupon struct {
	ID          int64
	Code        string
	Description string

	DiscountType DiscountType
	Value        decimal.Decimal
	MaxDiscount  decimal.Decimal // zero means uncapped

	MinOrderAmount decimal.Decimal // zero means no minimum

	Active           bool
	AutoApply        bool
	Stackable        bool
	ExcludeSaleItems bool
	Priority         int

	UsageLimitTotal       int // zero means unlimited
	UsageLimitPerCustomer int // zero means unlimited
	UsageCount            int

	StartsAt *time.Time
	EndsAt   *time.Time

	DaysOfWeek []time.Weekday // empty means every day
	TimeWindow *TimeWindow

	CustomerGroups    []string // empty means every group
	FirstOrderOnly    bool
	MinAccountAgeDays int

	ApplicableProducts   []string
	ExcludedProducts     []string
	ApplicableCategories []int64
	ExcludedCategories   []int64

	// Buy-X-get-Y configuration. BuyProducts narrows which products count
	// toward the buy quantity; empty means any eligible product.
	BuyQuantity int
	GetQuantity int
	BuyProducts []string
}

// Restrictions returns the cart restrictions this coupon carries.
func (c *Coupon) Restrictions() cart.Restrictions {
	return cart.Restrictions{
		ApplicableProducts:   c.ApplicableProducts,
		ExcludedProducts:     c.ExcludedProducts,
		ApplicableCategories: c.ApplicableCategories,
		ExcludedCategories:   c.ExcludedCategories,
		ExcludeSaleItems:     c.ExcludeSaleItems,
	}
}

// Repository provides lookup of coupon records.
type Repository interface {
	// FindByCode returns the active coupon matching code (case-insensitive).
	// Returns ErrNotFound when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// ListAutoApply returns all active coupons flagged for automatic application.
	ListAutoApply(ctx context.Context) ([]*Coupon, error)
}
