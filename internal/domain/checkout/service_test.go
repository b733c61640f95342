package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/coupon"
	"github.com/openkart/commerce/internal/domain/customer"
	"github.com/openkart/commerce/internal/domain/ledger"
	"github.com/openkart/commerce/internal/domain/product"
	"github.com/openkart/commerce/internal/domain/promotion"
)

type mockProductRepo struct {
	products map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := m.products[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

type mockCustomerRepo struct {
	profile *customer.Profile
}

func (m *mockCustomerRepo) GetProfile(_ context.Context, _ string) (*customer.Profile, error) {
	if m.profile == nil {
		return nil, customer.ErrNotFound
	}
	return m.profile, nil
}

type mockValidator struct {
	result coupon.Result
	auto   *coupon.Coupon
	err    error
}

func (m *mockValidator) Validate(_ context.Context, _, _ string, _ cart.Snapshot) (coupon.Result, error) {
	return m.result, m.err
}

func (m *mockValidator) AutoApply(_ context.Context, _ string, _ cart.Snapshot) (*coupon.Coupon, error) {
	return m.auto, m.err
}

type mockPromotionRepo struct {
	promotions []*promotion.Promotion
}

func (m *mockPromotionRepo) ListActive(_ context.Context) ([]*promotion.Promotion, error) {
	return m.promotions, nil
}

func (m *mockPromotionRepo) GetByID(_ context.Context, _ int64) (*promotion.Promotion, error) {
	return nil, promotion.ErrNotFound
}

// mockPlacer fails placement with the queued conflicts, one per call, then
// succeeds.
type mockPlacer struct {
	conflicts  []*LimitConflictError
	placements []Placement
}

func (m *mockPlacer) Place(_ context.Context, p Placement) error {
	m.placements = append(m.placements, p)
	if len(m.conflicts) > 0 {
		c := m.conflicts[0]
		m.conflicts = m.conflicts[1:]
		return c
	}
	return nil
}

func testService(products *mockProductRepo, v *mockValidator, promos *mockPromotionRepo, placer *mockPlacer) *Service {
	s := NewService(
		products,
		&mockCustomerRepo{},
		v,
		promos,
		&promotion.Resolver{},
		placer,
		PricingConfig{
			TaxRate:      dec("0.10"),
			ShippingCost: dec("5.99"),
		},
	)
	s.now = func() time.Time { return time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC) }
	return s
}

func catalog() *mockProductRepo {
	return &mockProductRepo{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "one", Price: dec("40")},
		"p2": {ID: "p2", Name: "two", Price: dec("20")},
	}}
}

func TestService_PlaceOrder(t *testing.T) {
	placer := &mockPlacer{}
	s := testService(catalog(), &mockValidator{}, &mockPromotionRepo{}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	require.NoError(t, err)

	o := res.Order
	assert.True(t, dec("100").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, dec("10").Equal(o.Tax), "tax %s", o.Tax)
	assert.True(t, dec("5.99").Equal(o.ShippingCost))
	assert.True(t, o.Discount.IsZero())
	assert.True(t, dec("115.99").Equal(o.Total), "total %s", o.Total)
	require.Len(t, o.Items, 2)
	require.Len(t, placer.placements, 1)
	assert.Empty(t, placer.placements[0].Reservations)
}

func TestService_PlaceOrder_RequestValidation(t *testing.T) {
	s := testService(catalog(), &mockValidator{}, &mockPromotionRepo{}, &mockPlacer{})

	_, err := s.PlaceOrder(context.Background(), Request{})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p1", Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "nope", Quantity: 1}},
	})
	var notFound *ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.ProductID)
}

func TestService_PlaceOrder_CouponRejected(t *testing.T) {
	v := &mockValidator{result: coupon.Result{Valid: false, Message: "invalid coupon code"}}
	s := testService(catalog(), v, &mockPromotionRepo{}, &mockPlacer{})

	_, err := s.PlaceOrder(context.Background(), Request{
		Items:      []RequestItem{{ProductID: "p1", Quantity: 1}},
		CouponCode: "BOGUS",
	})

	var rejected *CouponRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "BOGUS", rejected.Code)
	assert.Equal(t, "invalid coupon code", rejected.Message)
}

func TestService_PlaceOrder_AppliesCoupon(t *testing.T) {
	cpn := &coupon.Coupon{
		ID: 7, Code: "SAVE20",
		DiscountType: coupon.DiscountPercentage,
		Value:        dec("20"),
	}
	v := &mockValidator{result: coupon.Result{Valid: true, Coupon: cpn}}
	placer := &mockPlacer{}
	s := testService(catalog(), v, &mockPromotionRepo{}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items:      []RequestItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		CouponCode: "SAVE20",
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, "SAVE20", o.CouponCode)
	assert.True(t, dec("20").Equal(o.Discount))
	// 100 + 10 tax + 5.99 shipping - 20.
	assert.True(t, dec("95.99").Equal(o.Total), "total %s", o.Total)

	require.Len(t, placer.placements, 1)
	reservations := placer.placements[0].Reservations
	require.Len(t, reservations, 1)
	assert.Equal(t, ledger.SourceCoupon, reservations[0].Source)
	assert.Equal(t, int64(7), reservations[0].ParentID)
}

func TestService_PlaceOrder_AutoAppliesCoupon(t *testing.T) {
	cpn := &coupon.Coupon{
		ID: 9, Code: "AUTO5",
		DiscountType: coupon.DiscountFixedAmount,
		Value:        dec("5"),
		AutoApply:    true,
		Stackable:    true,
	}
	v := &mockValidator{auto: cpn}
	placer := &mockPlacer{}
	s := testService(catalog(), v, &mockPromotionRepo{}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, "AUTO5", o.CouponCode)
	assert.True(t, dec("5").Equal(o.Discount), "discount %s", o.Discount)

	require.Len(t, placer.placements, 1)
	reservations := placer.placements[0].Reservations
	require.Len(t, reservations, 1)
	assert.Equal(t, ledger.SourceCoupon, reservations[0].Source)
	assert.Equal(t, int64(9), reservations[0].ParentID)
}

func TestService_PlaceOrder_DiscountApportionedAcrossItems(t *testing.T) {
	cpn := &coupon.Coupon{
		ID: 7, Code: "TENOFF",
		DiscountType: coupon.DiscountFixedAmount,
		Value:        dec("10"),
	}
	v := &mockValidator{result: coupon.Result{Valid: true, Coupon: cpn}}
	s := testService(catalog(), v, &mockPromotionRepo{}, &mockPlacer{})

	res, err := s.PlaceOrder(context.Background(), Request{
		Items:      []RequestItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		CouponCode: "TENOFF",
	})
	require.NoError(t, err)

	items := res.Order.Items
	require.Len(t, items, 2)
	// 80/100 and 20/100 shares of $10.
	assert.True(t, dec("8").Equal(items[0].DiscountAmount), "first share %s", items[0].DiscountAmount)
	assert.True(t, dec("2").Equal(items[1].DiscountAmount), "second share %s", items[1].DiscountAmount)

	total := items[0].DiscountAmount.Add(items[1].DiscountAmount)
	assert.True(t, res.Order.Discount.Equal(total), "shares sum to the order discount")
}

func TestService_PlaceOrder_AppliesPromotions(t *testing.T) {
	promo := &promotion.Promotion{
		ID: 3, Name: "10% off", Type: promotion.TypeCartRule,
		DiscountType: promotion.DiscountPercentage, DiscountValue: dec("10"),
		Active: true, Stackable: true, StackableWithCoupons: true,
	}
	placer := &mockPlacer{}
	s := testService(catalog(), &mockValidator{}, &mockPromotionRepo{promotions: []*promotion.Promotion{promo}}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.True(t, dec("10").Equal(res.Order.Discount))
	require.Len(t, placer.placements, 1)
	reservations := placer.placements[0].Reservations
	require.Len(t, reservations, 1)
	assert.Equal(t, ledger.SourcePromotion, reservations[0].Source)
	assert.Equal(t, int64(3), reservations[0].ParentID)
}

func TestService_PlaceOrder_DropsCouponOnLimitConflict(t *testing.T) {
	cpn := &coupon.Coupon{
		ID: 7, Code: "SAVE20",
		DiscountType: coupon.DiscountPercentage,
		Value:        dec("20"),
	}
	v := &mockValidator{result: coupon.Result{Valid: true, Coupon: cpn}}
	placer := &mockPlacer{conflicts: []*LimitConflictError{
		{Source: ledger.SourceCoupon, ParentID: 7},
	}}
	s := testService(catalog(), v, &mockPromotionRepo{}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items:      []RequestItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
		CouponCode: "SAVE20",
	})
	require.NoError(t, err)

	// Second attempt succeeded without the coupon.
	assert.True(t, res.DroppedCoupon)
	assert.Empty(t, res.Order.CouponCode)
	assert.True(t, res.Order.Discount.IsZero())
	assert.Len(t, placer.placements, 2)
}

func TestService_PlaceOrder_DropsPromotionOnLimitConflict(t *testing.T) {
	contested := &promotion.Promotion{
		ID: 3, Name: "limited", Type: promotion.TypeCartRule,
		DiscountType: promotion.DiscountPercentage, DiscountValue: dec("50"),
		Active: true, Stackable: true, StackableWithCoupons: true,
	}
	steady := &promotion.Promotion{
		ID: 4, Name: "steady", Type: promotion.TypeCartRule,
		DiscountType: promotion.DiscountPercentage, DiscountValue: dec("10"),
		Active: true, Stackable: true, StackableWithCoupons: true,
	}
	placer := &mockPlacer{conflicts: []*LimitConflictError{
		{Source: ledger.SourcePromotion, ParentID: 3},
	}}
	s := testService(catalog(), &mockValidator{}, &mockPromotionRepo{promotions: []*promotion.Promotion{contested, steady}}, placer)

	res, err := s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.False(t, res.DroppedCoupon)
	assert.True(t, dec("10").Equal(res.Order.Discount), "only the surviving promotion applies")
	require.Len(t, res.Order.Discounts, 1)
	assert.Equal(t, int64(4), res.Order.Discounts[0].ID)
}

func TestService_PlaceOrder_FreeShippingThreshold(t *testing.T) {
	placer := &mockPlacer{}
	s := testService(catalog(), &mockValidator{}, &mockPromotionRepo{}, placer)
	s.pricing.FreeShippingThreshold = dec("50")

	res, err := s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, res.Order.ShippingCost.IsZero())

	res, err = s.PlaceOrder(context.Background(), Request{
		Items: []RequestItem{{ProductID: "p2", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, dec("5.99").Equal(res.Order.ShippingCost))
}
