package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/coupon"
	"github.com/openkart/commerce/internal/domain/customer"
	"github.com/openkart/commerce/internal/domain/ledger"
	"github.com/openkart/commerce/internal/domain/order"
	"github.com/openkart/commerce/internal/domain/product"
	"github.com/openkart/commerce/internal/domain/promotion"
)

// Sentinel errors for request validation.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// CouponRejectedError carries the user-facing reason a coupon was refused.
// It is raised at the point of application, never after placement.
type CouponRejectedError struct {
	Code    string
	Message string
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Message)
}

// Placement is everything persisted atomically at order placement: the order
// with its discount breakdown already applied, plus one usage reservation per
// applied discount source.
type Placement struct {
	Order        *order.Order
	Reservations []ledger.Reservation
}

// LimitConflictError reports which discount source lost the usage-limit race
// at commit time. The service drops that source and re-prices.
type LimitConflictError struct {
	Source   ledger.Source
	ParentID int64
}

func (e *LimitConflictError) Error() string {
	return fmt.Sprintf("%s %d: usage limit reached", e.Source, e.ParentID)
}

// Placer persists a placement in a single transaction: order + items + every
// ledger reservation (each with its limit re-check under a row lock). A limit
// conflict rolls the whole transaction back and surfaces LimitConflictError.
type Placer interface {
	Place(ctx context.Context, p Placement) error
}

// CouponValidator is satisfied by coupon.Validator.
type CouponValidator interface {
	Validate(ctx context.Context, code, customerID string, c cart.Snapshot) (coupon.Result, error)
	// AutoApply returns the highest-priority auto-apply coupon valid for the
	// cart, or nil when none applies.
	AutoApply(ctx context.Context, customerID string, c cart.Snapshot) (*coupon.Coupon, error)
}

// PricingConfig sets the order-level charges the engine does not own rules
// for: a flat tax rate and a flat shipping cost waived above a threshold.
type PricingConfig struct {
	TaxRate               decimal.Decimal
	ShippingCost          decimal.Decimal
	FreeShippingThreshold decimal.Decimal // zero disables the waiver
}

// Request holds the input for placing an order.
type Request struct {
	CustomerID string
	Items      []RequestItem
	CouponCode string
}

// RequestItem is one requested order line.
type RequestItem struct {
	ProductID string
	Quantity  int
}

// Result holds the output of a successfully placed order.
type Result struct {
	Order         *order.Order
	Breakdown     Breakdown
	Products      []product.Product
	DroppedCoupon bool // true when the coupon lost the usage-limit race
}

// Service orchestrates validate → resolve → combine → place.
type Service struct {
	products   product.Repository
	customers  customer.Repository
	coupons    CouponValidator
	promotions promotion.Repository
	resolver   *promotion.Resolver
	placer     Placer
	pricing    PricingConfig
	now        func() time.Time
}

// NewService creates a checkout Service with the required collaborators.
func NewService(
	products product.Repository,
	customers customer.Repository,
	coupons CouponValidator,
	promotions promotion.Repository,
	resolver *promotion.Resolver,
	placer Placer,
	pricing PricingConfig,
) *Service {
	return &Service{
		products:   products,
		customers:  customers,
		coupons:    coupons,
		promotions: promotions,
		resolver:   resolver,
		placer:     placer,
		pricing:    pricing,
		now:        time.Now,
	}
}

// PlaceOrder validates the request, prices the cart with all applicable
// discounts, and persists the order together with its usage reservations.
// When a reservation loses a usage-limit race the losing source is dropped,
// the order is re-priced, and placement is retried.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidQuantity, "product %s", item.ProductID)
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	products := make([]product.Product, 0, len(req.Items))
	snapshot := cart.Snapshot{Items: make([]cart.Item, 0, len(req.Items))}
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		snapshot.Items = append(snapshot.Items, cart.Item{
			ProductID:   p.ID,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
			CategoryIDs: p.CategoryIDs,
			OnSale:      p.OnSale,
		})
	}
	snapshot.ShippingCost = s.shippingFor(snapshot)

	// Coupon validation happens up front so rejections reach the customer at
	// the point of application. Without a code, the best auto-apply coupon
	// fills the slot; an empty candidate list is not an error.
	var cpn *coupon.Coupon
	if req.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, req.CouponCode, req.CustomerID, snapshot)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if !res.Valid {
			return nil, &CouponRejectedError{Code: req.CouponCode, Message: res.Message}
		}
		cpn = res.Coupon
	} else {
		cpn, err = s.coupons.AutoApply(ctx, req.CustomerID, snapshot)
		if err != nil {
			return nil, errors.Wrap(err, "auto-apply coupons")
		}
	}

	customerGroup := ""
	if req.CustomerID != "" {
		profile, err := s.customers.GetProfile(ctx, req.CustomerID)
		if err != nil && !errors.Is(err, customer.ErrNotFound) {
			return nil, errors.Wrap(err, "lookup customer")
		}
		if profile != nil {
			customerGroup = profile.Group
		}
	}

	active, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	promos := s.resolver.Resolve(active, snapshot, customerGroup, s.now())

	result := &Result{Products: products}

	// Placement loop: a usage-limit conflict drops the losing source and
	// retries with the rest. Bounded by the number of sources plus one.
	for attempt := 0; attempt <= len(promos)+1; attempt++ {
		breakdown, err := Combine(snapshot, cpn, promos)
		if err != nil {
			return nil, errors.Wrap(err, "combine discounts")
		}

		o := s.buildOrder(req, snapshot, cpn, breakdown)
		placement := Placement{
			Order:        o,
			Reservations: reservations(o, breakdown),
		}

		err = s.placer.Place(ctx, placement)
		if err == nil {
			result.Order = o
			result.Breakdown = breakdown
			return result, nil
		}

		var conflict *LimitConflictError
		if !errors.As(err, &conflict) {
			return nil, errors.Wrap(err, "place order")
		}

		switch conflict.Source {
		case ledger.SourceCoupon:
			cpn = nil
			result.DroppedCoupon = true
		case ledger.SourcePromotion:
			promos = dropPromotion(promos, conflict.ParentID)
		}
	}

	return nil, errors.New("placement retries exhausted")
}

// shippingFor quotes the flat shipping cost, waived above the free-shipping
// threshold.
func (s *Service) shippingFor(c cart.Snapshot) decimal.Decimal {
	if s.pricing.FreeShippingThreshold.IsPositive() &&
		c.Subtotal().GreaterThanOrEqual(s.pricing.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.pricing.ShippingCost
}

// buildOrder prices the order from the snapshot and breakdown. Total is
// computed here once and stored; the floor at zero guards the arithmetic
// invariant that discounts never produce a negative total.
func (s *Service) buildOrder(req Request, c cart.Snapshot, cpn *coupon.Coupon, b Breakdown) *order.Order {
	subtotal := c.Subtotal()
	tax := subtotal.Mul(s.pricing.TaxRate).Round(2)
	discountTotal := b.TotalDiscount.Round(2)

	total := subtotal.Add(tax).Add(c.ShippingCost).Sub(discountTotal)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &order.Order{
		ID:            uuid.New(),
		CustomerID:    req.CustomerID,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		Subtotal:      subtotal.Round(2),
		Tax:           tax,
		ShippingCost:  c.ShippingCost.Round(2),
		Discount:      discountTotal,
		Total:         total.Round(2),
		CreatedAt:     s.now(),
	}
	if cpn != nil {
		o.CouponCode = cpn.Code
	}

	for _, line := range b.Lines {
		o.Discounts = append(o.Discounts, order.DiscountLine{
			Source: string(line.Source),
			ID:     line.SourceID,
			Label:  line.Label,
			Type:   string(line.Type),
			Amount: line.Amount,
		})
	}

	o.Items = buildItems(o.ID, c, s.pricing.TaxRate, b)
	return o
}

// buildItems creates order lines and apportions the item-level discount
// pro-rata by line total. Shipping discounts are not apportioned.
func buildItems(orderID uuid.UUID, c cart.Snapshot, taxRate decimal.Decimal, b Breakdown) []order.Item {
	itemDiscount := decimal.Zero
	for _, line := range b.Lines {
		if line.Type != "free_shipping" {
			itemDiscount = itemDiscount.Add(line.Amount)
		}
	}

	subtotal := c.Subtotal()
	items := make([]order.Item, 0, len(c.Items))
	allocated := decimal.Zero
	for i, it := range c.Items {
		lineTotal := it.LineTotal()

		var share decimal.Decimal
		if i == len(c.Items)-1 {
			// Last line absorbs the rounding remainder.
			share = itemDiscount.Sub(allocated)
		} else if subtotal.IsPositive() {
			share = itemDiscount.Mul(lineTotal).Div(subtotal).Round(2)
			allocated = allocated.Add(share)
		}

		items = append(items, order.Item{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			Price:          it.UnitPrice,
			LineTotal:      lineTotal.Round(2),
			TaxAmount:      lineTotal.Mul(taxRate).Round(2),
			DiscountAmount: share,
		})
	}
	return items
}

// reservations builds one usage reservation per applied discount source.
func reservations(o *order.Order, b Breakdown) []ledger.Reservation {
	out := make([]ledger.Reservation, 0, len(b.Lines))
	for _, line := range b.Lines {
		src := ledger.SourcePromotion
		if line.Source == SourceCoupon {
			src = ledger.SourceCoupon
		}
		out = append(out, ledger.Reservation{
			Source:         src,
			ParentID:       line.SourceID,
			CustomerID:     o.CustomerID,
			OrderID:        o.ID,
			DiscountAmount: line.Amount,
			OrderSubtotal:  o.Subtotal,
		})
	}
	return out
}

func dropPromotion(promos []*promotion.Promotion, id int64) []*promotion.Promotion {
	kept := promos[:0:0]
	for _, p := range promos {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return kept
}
