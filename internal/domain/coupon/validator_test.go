package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/customer"
	"github.com/openkart/commerce/internal/domain/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockCouponRepo struct {
	coupon    *Coupon
	autoApply []*Coupon
	err       error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCouponRepo) ListAutoApply(_ context.Context) ([]*Coupon, error) {
	return m.autoApply, m.err
}

type mockCustomerRepo struct {
	profile *customer.Profile
	err     error
}

func (m *mockCustomerRepo) GetProfile(_ context.Context, _ string) (*customer.Profile, error) {
	return m.profile, m.err
}

type mockLedger struct {
	count int
	err   error
}

func (m *mockLedger) ReserveUsage(_ context.Context, _ ledger.Reservation) (*ledger.Entry, error) {
	return nil, errors.New("not used by validator")
}

func (m *mockLedger) CountByCustomer(_ context.Context, _ ledger.Source, _ int64, _ string) (int, error) {
	return m.count, m.err
}

func testCart() cart.Snapshot {
	return cart.Snapshot{Items: []cart.Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("30")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("40"), OnSale: true},
	}}
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC) // a Wednesday
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	baseCoupon := func() *Coupon {
		return &Coupon{
			ID:           1,
			Code:         "SAVE20",
			DiscountType: DiscountPercentage,
			Value:        dec("20"),
			Active:       true,
		}
	}

	tests := []struct {
		name        string
		coupons     *mockCouponRepo
		customers   *mockCustomerRepo
		usage       *mockLedger
		customerID  string
		wantValid   bool
		wantMessage string
	}{
		{
			name:      "valid coupon",
			coupons:   &mockCouponRepo{coupon: baseCoupon()},
			wantValid: true,
		},
		{
			name:        "unknown code",
			coupons:     &mockCouponRepo{err: ErrNotFound},
			wantValid:   false,
			wantMessage: "invalid coupon code",
		},
		{
			name: "not yet active",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.StartsAt = &futureTime
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon is expired or not yet active",
		},
		{
			name: "expired",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.EndsAt = &pastTime
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon is expired or not yet active",
		},
		{
			name: "wrong weekday",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.DaysOfWeek = []time.Weekday{time.Saturday, time.Sunday}
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon is not valid at this time",
		},
		{
			name: "allowed weekday",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.DaysOfWeek = []time.Weekday{time.Wednesday}
				return c
			}()},
			wantValid: true,
		},
		{
			name: "outside daily time window",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.TimeWindow = &TimeWindow{FromMinute: 9 * 60, UntilMinute: 11 * 60}
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon is not valid at this time",
		},
		{
			name: "below minimum order amount",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.MinOrderAmount = dec("150")
				return c
			}()},
			wantValid:   false,
			wantMessage: "your order does not meet the minimum amount for this coupon",
		},
		{
			name: "first order only rejects repeat customer",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.FirstOrderOnly = true
				return c
			}()},
			customers: &mockCustomerRepo{profile: &customer.Profile{
				ID: "c1", CreatedAt: fixedNow.AddDate(-1, 0, 0), CompletedOrders: 3,
			}},
			customerID:  "c1",
			wantValid:   false,
			wantMessage: "this coupon is only valid on your first order",
		},
		{
			name: "customer-bound coupon rejects guests",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.FirstOrderOnly = true
				return c
			}()},
			wantValid:   false,
			wantMessage: "sign in to use this coupon",
		},
		{
			name: "account too new",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.MinAccountAgeDays = 30
				return c
			}()},
			customers: &mockCustomerRepo{profile: &customer.Profile{
				ID: "c1", CreatedAt: fixedNow.AddDate(0, 0, -5),
			}},
			customerID:  "c1",
			wantValid:   false,
			wantMessage: "your account is too new to use this coupon",
		},
		{
			name: "wrong customer group",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.CustomerGroups = []string{"vip"}
				return c
			}()},
			customers: &mockCustomerRepo{profile: &customer.Profile{
				ID: "c1", Group: "general", CreatedAt: fixedNow.AddDate(-1, 0, 0),
			}},
			customerID:  "c1",
			wantValid:   false,
			wantMessage: "this coupon is not available for your account",
		},
		{
			name: "global usage exhausted",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.UsageLimitTotal = 100
				c.UsageCount = 100
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon is no longer available",
		},
		{
			name: "per-customer limit reached",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.UsageLimitPerCustomer = 1
				return c
			}()},
			usage:       &mockLedger{count: 1},
			customerID:  "c1",
			wantValid:   false,
			wantMessage: "you have already used this coupon the maximum number of times",
		},
		{
			name: "per-customer limit ignored for guests",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.UsageLimitPerCustomer = 1
				return c
			}()},
			usage:     &mockLedger{count: 5},
			wantValid: true,
		},
		{
			name: "no eligible items after exclusions",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.ApplicableProducts = []string{"p9"}
				return c
			}()},
			wantValid:   false,
			wantMessage: "this coupon does not apply to any items in your cart",
		},
		{
			name: "sale-item exclusion still leaves eligible lines",
			coupons: &mockCouponRepo{coupon: func() *Coupon {
				c := baseCoupon()
				c.ExcludeSaleItems = true
				return c
			}()},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers := tt.customers
			if customers == nil {
				customers = &mockCustomerRepo{err: customer.ErrNotFound}
			}
			usage := tt.usage
			if usage == nil {
				usage = &mockLedger{}
			}

			v := NewValidator(tt.coupons, customers, usage)
			v.now = func() time.Time { return fixedNow }

			res, err := v.Validate(context.Background(), "SAVE20", tt.customerID, testCart())
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantValid {
				require.NotNil(t, res.Coupon)
				assert.Empty(t, res.Message)
			} else {
				assert.Equal(t, tt.wantMessage, res.Message)
			}
		})
	}
}

func TestValidator_Validate_LookupError(t *testing.T) {
	boom := errors.New("db down")
	v := NewValidator(&mockCouponRepo{err: boom}, &mockCustomerRepo{}, &mockLedger{})

	_, err := v.Validate(context.Background(), "SAVE20", "", testCart())
	require.ErrorIs(t, err, boom)
}

func TestValidator_AutoApply(t *testing.T) {
	fixedNow := time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)

	newValidator := func(repo *mockCouponRepo) *Validator {
		v := NewValidator(repo, &mockCustomerRepo{err: customer.ErrNotFound}, &mockLedger{})
		v.now = func() time.Time { return fixedNow }
		return v
	}

	t.Run("first valid candidate wins", func(t *testing.T) {
		expired := &Coupon{
			ID: 2, Code: "EXPIRED",
			DiscountType: DiscountPercentage, Value: dec("50"),
			Active: true, AutoApply: true, Priority: 10,
			EndsAt: &pastTime,
		}
		winner := &Coupon{
			ID: 3, Code: "AUTO10",
			DiscountType: DiscountPercentage, Value: dec("10"),
			Active: true, AutoApply: true, Priority: 5,
		}
		v := newValidator(&mockCouponRepo{autoApply: []*Coupon{expired, winner}})

		got, err := v.AutoApply(context.Background(), "", testCart())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "AUTO10", got.Code)
	})

	t.Run("no candidates", func(t *testing.T) {
		v := newValidator(&mockCouponRepo{})

		got, err := v.AutoApply(context.Background(), "", testCart())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("inapplicable candidates are skipped silently", func(t *testing.T) {
		restricted := &Coupon{
			ID: 4, Code: "OTHERCAT",
			DiscountType: DiscountPercentage, Value: dec("10"),
			Active: true, AutoApply: true,
			ApplicableProducts: []string{"p9"},
		}
		v := newValidator(&mockCouponRepo{autoApply: []*Coupon{restricted}})

		got, err := v.AutoApply(context.Background(), "", testCart())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTimeWindow_Contains(t *testing.T) {
	w := TimeWindow{FromMinute: 17 * 60, UntilMinute: 19 * 60} // 17:00-19:00

	assert.True(t, w.Contains(time.Date(2026, 3, 18, 17, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2026, 3, 18, 19, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2026, 3, 18, 19, 1, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2026, 3, 18, 8, 30, 0, 0, time.UTC)))
}
