// Package cart defines the in-memory cart snapshot the discount engine
// operates on. A snapshot is assembled by the checkout flow from the session
// store and the product catalog; the engine itself never touches persistence.
package cart

import (
	"github.com/shopspring/decimal"
)

// Item is a single cart line.
type Item struct {
	ProductID   string
	Quantity    int
	UnitPrice   decimal.Decimal
	CategoryIDs []int64
	OnSale      bool
}

// LineTotal returns UnitPrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is the cart state at the moment of discount evaluation.
type Snapshot struct {
	Items        []Item
	ShippingCost decimal.Decimal
}

// Subtotal returns the sum of all line totals.
func (s Snapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// TotalQuantity returns the sum of quantities across all lines.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, it := range s.Items {
		total += it.Quantity
	}
	return total
}

// Restrictions narrows the set of cart lines a discount source may touch.
// Empty applicable sets mean "no restriction"; excluded sets always apply.
type Restrictions struct {
	ApplicableProducts   []string
	ExcludedProducts     []string
	ApplicableCategories []int64
	ExcludedCategories   []int64
	ExcludeSaleItems     bool
}

// IsZero reports whether no restriction is configured at all.
func (r Restrictions) IsZero() bool {
	return len(r.ApplicableProducts) == 0 &&
		len(r.ExcludedProducts) == 0 &&
		len(r.ApplicableCategories) == 0 &&
		len(r.ExcludedCategories) == 0 &&
		!r.ExcludeSaleItems
}

// EligibleLines returns the cart lines the restrictions allow. Excluded
// products and categories remove matching lines from the eligible set rather
// than voiding the whole discount; callers treat an empty result as
// "not applicable to these items".
func (s Snapshot) EligibleLines(r Restrictions) []Item {
	if r.IsZero() {
		return s.Items
	}

	eligible := make([]Item, 0, len(s.Items))
	for _, it := range s.Items {
		if r.ExcludeSaleItems && it.OnSale {
			continue
		}
		if containsString(r.ExcludedProducts, it.ProductID) {
			continue
		}
		if intersects(r.ExcludedCategories, it.CategoryIDs) {
			continue
		}
		if len(r.ApplicableProducts) > 0 || len(r.ApplicableCategories) > 0 {
			matches := containsString(r.ApplicableProducts, it.ProductID) ||
				intersects(r.ApplicableCategories, it.CategoryIDs)
			if !matches {
				continue
			}
		}
		eligible = append(eligible, it)
	}
	return eligible
}

// EligibleSubtotal returns the sum of line totals over EligibleLines.
func (s Snapshot) EligibleSubtotal(r Restrictions) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.EligibleLines(r) {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(set []int64, values []int64) bool {
	for _, s := range set {
		for _, v := range values {
			if s == v {
				return true
			}
		}
	}
	return false
}
