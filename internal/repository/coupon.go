package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/commerce/internal/domain/coupon"
)

const couponColumns = `id, code, description, discount_type, value,
	COALESCE(max_discount, 0), COALESCE(min_order_amount, 0),
	active, auto_apply, stackable, exclude_sale_items, priority,
	usage_limit_total, usage_limit_per_customer, usage_count,
	starts_at, ends_at, days_of_week, time_from_minute, time_until_minute,
	customer_groups, first_order_only, min_account_age_days,
	applicable_products, excluded_products, applicable_categories, excluded_categories,
	buy_quantity, get_quantity, buy_products`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	listAutoApplySQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE auto_apply = TRUE AND active = TRUE ORDER BY priority DESC, id`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListAutoApply returns all active auto-apply coupons in priority order.
func (r *CouponRepository) ListAutoApply(ctx context.Context) ([]*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listAutoApplySQL)
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply coupons: %w", err)
	}

	out := make([]*coupon.Coupon, len(coupons))
	for i := range coupons {
		out[i] = &coupons[i]
	}
	return out, nil
}

const insertCouponSQL = `INSERT INTO coupons
	(code, description, discount_type, value, max_discount, min_order_amount,
	active, auto_apply, stackable, exclude_sale_items, priority,
	usage_limit_total, usage_limit_per_customer,
	starts_at, ends_at, days_of_week, time_from_minute, time_until_minute,
	customer_groups, first_order_only, min_account_age_days,
	applicable_products, excluded_products, applicable_categories, excluded_categories,
	buy_quantity, get_quantity, buy_products)
	VALUES ($1, $2, $3, $4, NULLIF($5, 0::numeric), NULLIF($6, 0::numeric),
	$7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
	$19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	RETURNING id`

// Create persists a new coupon and fills in its generated ID.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	days := make([]int32, len(c.DaysOfWeek))
	for i, d := range c.DaysOfWeek {
		days[i] = int32(d)
	}

	var timeFrom, timeUntil *int32
	if c.TimeWindow != nil {
		from, until := int32(c.TimeWindow.FromMinute), int32(c.TimeWindow.UntilMinute)
		timeFrom, timeUntil = &from, &until
	}

	err := r.pool.QueryRow(ctx, insertCouponSQL,
		c.Code, c.Description, c.DiscountType, c.Value, c.MaxDiscount, c.MinOrderAmount,
		c.Active, c.AutoApply, c.Stackable, c.ExcludeSaleItems, c.Priority,
		c.UsageLimitTotal, c.UsageLimitPerCustomer,
		c.StartsAt, c.EndsAt, days, timeFrom, timeUntil,
		c.CustomerGroups, c.FirstOrderOnly, c.MinAccountAgeDays,
		c.ApplicableProducts, c.ExcludedProducts, c.ApplicableCategories, c.ExcludedCategories,
		c.BuyQuantity, c.GetQuantity, c.BuyProducts,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		daysOfWeek   []int32
		timeFrom     *int32
		timeUntil    *int32
		startsAt     *time.Time
		endsAt       *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &discountType, &c.Value,
		&c.MaxDiscount, &c.MinOrderAmount,
		&c.Active, &c.AutoApply, &c.Stackable, &c.ExcludeSaleItems, &c.Priority,
		&c.UsageLimitTotal, &c.UsageLimitPerCustomer, &c.UsageCount,
		&startsAt, &endsAt, &daysOfWeek, &timeFrom, &timeUntil,
		&c.CustomerGroups, &c.FirstOrderOnly, &c.MinAccountAgeDays,
		&c.ApplicableProducts, &c.ExcludedProducts, &c.ApplicableCategories, &c.ExcludedCategories,
		&c.BuyQuantity, &c.GetQuantity, &c.BuyProducts,
	)
	if err != nil {
		return coupon.Coupon{}, err
	}

	c.DiscountType = coupon.DiscountType(discountType)
	c.StartsAt = startsAt
	c.EndsAt = endsAt
	for _, d := range daysOfWeek {
		c.DaysOfWeek = append(c.DaysOfWeek, time.Weekday(d))
	}
	if timeFrom != nil && timeUntil != nil {
		c.TimeWindow = &coupon.TimeWindow{
			FromMinute:  int(*timeFrom),
			UntilMinute: int(*timeUntil),
		}
	}
	return c, nil
}
