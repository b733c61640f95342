package discount

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// percentageStrategy discounts Value percent of the eligible subtotal,
// capped by MaxDiscount when set.
type percentageStrategy struct{}

func (percentageStrategy) Amount(in Input, p Params) (decimal.Decimal, error) {
	amount := in.EligibleSubtotal.Mul(p.Value).Div(hundred)
	if p.MaxDiscount.IsPositive() && amount.GreaterThan(p.MaxDiscount) {
		amount = p.MaxDiscount
	}
	return amount, nil
}

// fixedAmountStrategy discounts Value, never below a zero remainder.
type fixedAmountStrategy struct{}

func (fixedAmountStrategy) Amount(in Input, p Params) (decimal.Decimal, error) {
	return decimal.Min(p.Value, in.EligibleSubtotal), nil
}

// freeShippingStrategy discounts the cart's shipping cost; zero when shipping
// is already free.
type freeShippingStrategy struct{}

func (freeShippingStrategy) Amount(in Input, _ Params) (decimal.Decimal, error) {
	return in.ShippingCost, nil
}

// buyXGetYStrategy expands eligible lines into units, sorts them by
// descending unit price, and splits them into complete groups of
// BuyQuantity+GetQuantity units. Within each complete group the trailing
// GetQuantity units — the cheapest ones — are free. Incomplete groups earn
// nothing.
type buyXGetYStrategy struct{}

func (buyXGetYStrategy) Amount(in Input, p Params) (decimal.Decimal, error) {
	if p.BuyQuantity <= 0 || p.GetQuantity <= 0 {
		return decimal.Zero, nil
	}

	units := expandUnits(in.EligibleLines, p.BuyProducts)
	sort.Slice(units, func(i, j int) bool {
		return units[i].GreaterThan(units[j])
	})

	groupSize := p.BuyQuantity + p.GetQuantity
	amount := decimal.Zero
	for start := 0; start+groupSize <= len(units); start += groupSize {
		for _, price := range units[start+p.BuyQuantity : start+groupSize] {
			amount = amount.Add(price)
		}
	}
	return amount, nil
}

// expandUnits flattens lines into one price per unit, optionally narrowed to
// the given product set.
func expandUnits(lines []cart.Item, onlyProducts []string) []decimal.Decimal {
	allow := func(string) bool { return true }
	if len(onlyProducts) > 0 {
		set := make(map[string]struct{}, len(onlyProducts))
		for _, id := range onlyProducts {
			set[id] = struct{}{}
		}
		allow = func(id string) bool {
			_, ok := set[id]
			return ok
		}
	}

	var units []decimal.Decimal
	for _, line := range lines {
		if !allow(line.ProductID) {
			continue
		}
		for i := 0; i < line.Quantity; i++ {
			units = append(units, line.UnitPrice)
		}
	}
	return units
}

// fixedPriceStrategy sets an absolute final price for the eligible items: the
// discount is whatever exceeds that price.
type fixedPriceStrategy struct{}

func (fixedPriceStrategy) Amount(in Input, p Params) (decimal.Decimal, error) {
	return in.EligibleSubtotal.Sub(p.Value), nil // clamped to >= 0 by Calculate
}

// tieredPricingStrategy finds the highest tier whose quantity band contains
// the eligible unit count and applies that tier's percentage.
type tieredPricingStrategy struct{}

func (tieredPricingStrategy) Amount(in Input, p Params) (decimal.Decimal, error) {
	qty := 0
	for _, line := range in.EligibleLines {
		qty += line.Quantity
	}

	var matched *Tier
	for i := range p.Tiers {
		t := &p.Tiers[i]
		if qty < t.MinQuantity {
			continue
		}
		if t.MaxQuantity > 0 && qty > t.MaxQuantity {
			continue
		}
		if matched == nil || t.MinQuantity > matched.MinQuantity {
			matched = t
		}
	}
	if matched == nil {
		return decimal.Zero, nil
	}

	return in.EligibleSubtotal.Mul(matched.Percent).Div(hundred), nil
}
