package promotion

import (
	"sort"
	"time"

	"github.com/openkart/commerce/internal/domain/cart"
)

// Resolver decides which active promotions apply to a cart and in what order.
type Resolver struct {
	// OnSkip, when set, observes promotions dropped for malformed
	// configuration. Resolution always continues past a bad rule.
	OnSkip func(p *Promotion, err error)
}

// Resolve filters promotions down to those matching the cart and customer at
// the given time, then orders them by priority (descending, ties broken by ID
// ascending for determinism) and applies the stacking walk:
//
//   - once an included promotion with StopRulesProcessing is passed, all
//     strictly lower-priority promotions are skipped;
//   - at most one non-stackable promotion is included, first in order wins.
func (r *Resolver) Resolve(promotions []*Promotion, c cart.Snapshot, customerGroup string, now time.Time) []*Promotion {
	matched := make([]*Promotion, 0, len(promotions))
	for _, p := range promotions {
		if !r.matches(p, c, customerGroup, now) {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	applied := make([]*Promotion, 0, len(matched))
	var (
		stopBelowPriority *int
		haveNonStackable  bool
	)
	for _, p := range matched {
		if stopBelowPriority != nil && p.Priority < *stopBelowPriority {
			break
		}
		if !p.Stackable && haveNonStackable {
			continue
		}

		applied = append(applied, p)

		if !p.Stackable {
			haveNonStackable = true
		}
		if p.StopRulesProcessing && stopBelowPriority == nil {
			priority := p.Priority
			stopBelowPriority = &priority
		}
	}
	return applied
}

// matches runs the per-promotion eligibility checks. Malformed configuration
// skips the promotion (reported via OnSkip) instead of failing resolution.
func (r *Resolver) matches(p *Promotion, c cart.Snapshot, customerGroup string, now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	if p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit {
		return false
	}

	if err := p.ValidateConfig(); err != nil {
		if r.OnSkip != nil {
			r.OnSkip(p, err)
		}
		return false
	}

	cond := p.Conditions
	if cond.MinOrderAmount.IsPositive() && c.Subtotal().LessThan(cond.MinOrderAmount) {
		return false
	}
	if cond.MinItems > 0 && c.TotalQuantity() < cond.MinItems {
		return false
	}
	if len(cond.CustomerGroups) > 0 {
		found := false
		for _, g := range cond.CustomerGroups {
			if g == customerGroup {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Bundles require every component in the configured quantity.
	if p.Type == TypeBundle && !bundleSatisfied(p.BundleProducts, c) {
		return false
	}

	// A promotion whose actions exclude every cart line has nothing to discount.
	if len(c.EligibleLines(p.Restrictions())) == 0 {
		return false
	}

	return true
}

func bundleSatisfied(components []BundleProduct, c cart.Snapshot) bool {
	quantities := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		quantities[it.ProductID] += it.Quantity
	}
	for _, comp := range components {
		if quantities[comp.ProductID] < comp.Quantity {
			return false
		}
	}
	return true
}
