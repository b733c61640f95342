// Package discount computes discount amounts per discount type. Each type is
// a Strategy selected from a registry keyed by the type tag, so individual
// strategies stay independently testable and the dispatch has no conditional
// chain.
package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
)

// Type tags the discount computation to run. Coupons and promotions map their
// own type enums onto these tags.
type Type string

const (
	TypePercentage    Type = "percentage"
	TypeFixedAmount   Type = "fixed_amount"
	TypeFreeShipping  Type = "free_shipping"
	TypeBuyXGetY      Type = "buy_x_get_y"
	TypeFixedPrice    Type = "fixed_price"
	TypeTieredPricing Type = "tiered_pricing"
)

// ErrUnknownType is returned when no strategy is registered for a type tag.
var ErrUnknownType = errors.New("unknown discount type")

// Input is the cart-derived state a strategy computes against. EligibleLines
// and EligibleSubtotal already reflect the discount source's own
// product/category restrictions.
type Input struct {
	EligibleLines    []cart.Item
	EligibleSubtotal decimal.Decimal
	ShippingCost     decimal.Decimal
}

// Tier is one quantity band of a tiered-pricing promotion. MaxQuantity zero
// means unbounded. Bands must be ascending and non-overlapping; that is
// enforced at admin save time, not here.
type Tier struct {
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity int             `json:"max_quantity"`
	Percent     decimal.Decimal `json:"percent"`
}

// Params carries the per-rule configuration a strategy needs.
type Params struct {
	Value       decimal.Decimal
	MaxDiscount decimal.Decimal // zero means uncapped

	// Buy-X-get-Y configuration.
	BuyQuantity int
	GetQuantity int
	BuyProducts []string

	// Tiered pricing bands.
	Tiers []Tier
}

// Strategy computes the raw discount amount for one discount type.
type Strategy interface {
	Amount(in Input, p Params) (decimal.Decimal, error)
}

var registry = map[Type]Strategy{
	TypePercentage:    percentageStrategy{},
	TypeFixedAmount:   fixedAmountStrategy{},
	TypeFreeShipping:  freeShippingStrategy{},
	TypeBuyXGetY:      buyXGetYStrategy{},
	TypeFixedPrice:    fixedPriceStrategy{},
	TypeTieredPricing: tieredPricingStrategy{},
}

// Calculate dispatches to the strategy for t and clamps the result to
// [0, eligible subtotal] rounded to 2 decimal places. Free shipping clamps to
// the shipping cost instead, since it discounts a charge outside the subtotal.
func Calculate(t Type, in Input, p Params) (decimal.Decimal, error) {
	s, ok := registry[t]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrUnknownType, "%q", t)
	}

	amount, err := s.Amount(in, p)
	if err != nil {
		return decimal.Zero, err
	}

	ceiling := in.EligibleSubtotal
	if t == TypeFreeShipping {
		ceiling = in.ShippingCost
	}
	return clamp(amount, ceiling).Round(2), nil
}

// clamp bounds d to [0, ceiling].
func clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}
