// Package checkout combines validated coupons and resolved promotions into a
// final discount breakdown and orchestrates order placement.
package checkout

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/coupon"
	"github.com/openkart/commerce/internal/domain/discount"
	"github.com/openkart/commerce/internal/domain/promotion"
)

// Source tags a breakdown line with where its discount came from.
type Source string

const (
	SourceCoupon    Source = "coupon"
	SourcePromotion Source = "promotion"
)

// Line is one applied discount in the final breakdown.
type Line struct {
	Source   Source
	SourceID int64
	Label    string
	Type     discount.Type
	Amount   decimal.Decimal
}

// Breakdown is the ordered list of applied discounts plus the capped total.
type Breakdown struct {
	Lines         []Line
	TotalDiscount decimal.Decimal
}

// Combine applies the stacking policy and computes the final breakdown.
//
// Policy, in order:
//   - only one coupon per checkout; cpn may be nil;
//   - a non-stackable coupon stands alone: every promotion is evicted;
//   - a stackable coupon admits only promotions that set
//     StackableWithCoupons;
//   - discounts are computed sequentially against a shrinking subtotal:
//     promotions first, in resolver order, then the coupon against the
//     post-promotion remainder. Summing against the original subtotal would
//     be an equally defensible policy; sequential was chosen to keep stacked
//     percentage discounts bounded.
//
// The total is capped so the order's item remainder never goes negative;
// free-shipping amounts are capped at the shipping cost instead.
func Combine(c cart.Snapshot, cpn *coupon.Coupon, promotions []*promotion.Promotion) (Breakdown, error) {
	if cpn != nil {
		kept := promotions[:0:0]
		if cpn.Stackable {
			for _, p := range promotions {
				if p.StackableWithCoupons {
					kept = append(kept, p)
				}
			}
		}
		promotions = kept
	}

	var (
		breakdown Breakdown
		remaining = c.Subtotal()
		shipping  = c.ShippingCost
	)

	apply := func(src Source, id int64, label string, tag discount.Type, r cart.Restrictions, p discount.Params) error {
		lines := c.EligibleLines(r)
		eligible := c.EligibleSubtotal(r)
		if eligible.GreaterThan(remaining) {
			eligible = remaining
		}

		amount, err := discount.Calculate(tag, discount.Input{
			EligibleLines:    lines,
			EligibleSubtotal: eligible,
			ShippingCost:     shipping,
		}, p)
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return nil
		}

		if tag == discount.TypeFreeShipping {
			shipping = shipping.Sub(amount)
		} else {
			remaining = remaining.Sub(amount)
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
		}

		breakdown.Lines = append(breakdown.Lines, Line{
			Source:   src,
			SourceID: id,
			Label:    label,
			Type:     tag,
			Amount:   amount,
		})
		breakdown.TotalDiscount = breakdown.TotalDiscount.Add(amount)
		return nil
	}

	for _, p := range promotions {
		err := apply(SourcePromotion, p.ID, p.Name, p.DiscountTag(), p.Restrictions(), discount.Params{
			Value:       p.DiscountValue,
			MaxDiscount: p.MaxDiscount,
			Tiers:       p.PriceTiers,
		})
		if err != nil {
			return Breakdown{}, errors.Wrapf(err, "promotion %d", p.ID)
		}
	}

	if cpn != nil {
		err := apply(SourceCoupon, cpn.ID, cpn.Code, discount.Type(cpn.DiscountType), cpn.Restrictions(), discount.Params{
			Value:       cpn.Value,
			MaxDiscount: cpn.MaxDiscount,
			BuyQuantity: cpn.BuyQuantity,
			GetQuantity: cpn.GetQuantity,
			BuyProducts: cpn.BuyProducts,
		})
		if err != nil {
			return Breakdown{}, errors.Wrapf(err, "coupon %s", cpn.Code)
		}
	}

	return breakdown, nil
}
