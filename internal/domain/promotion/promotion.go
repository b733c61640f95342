// Package promotion models catalog and cart price rules and resolves which
// of them apply to a cart. Unlike coupons, promotions are not entered by the
// customer; active rules are matched automatically.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/discount"
)

// Type enumerates promotion rule kinds.
type Type string

const (
	TypeCatalogRule   Type = "catalog_rule"
	TypeCartRule      Type = "cart_rule"
	TypeBundle        Type = "bundle"
	TypeFlashSale     Type = "flash_sale"
	TypeTieredPricing Type = "tiered_pricing"
)

// DiscountType enumerates how a promotion's discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// ErrNotFound is returned by repositories for unknown promotion IDs.
var ErrNotFound = errors.New("promotion not found")

// Conditions is the closed schema for a promotion's eligibility conditions.
// All configured conditions must hold (AND semantics).
type Conditions struct {
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MinItems       int             `json:"min_items"`
	CustomerGroups []string        `json:"customer_groups"`
}

// Actions is the closed schema for what a promotion's discount applies to.
type Actions struct {
	ApplicableProducts   []string `json:"applicable_products"`
	ExcludedProducts     []string `json:"excluded_products"`
	ApplicableCategories []int64  `json:"applicable_categories"`
	ExcludedCategories   []int64  `json:"excluded_categories"`
}

// BundleProduct is one component of a bundle promotion.
type BundleProduct struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Promotion is a configured price rule.
type Promotion struct {
	ID   int64
	Name string
	Type Type

	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MaxDiscount   decimal.Decimal // zero means uncapped

	Active               bool
	StopRulesProcessing  bool
	Priority             int
	Stackable            bool
	StackableWithCoupons bool

	BadgeLabel string

	StartsAt *time.Time
	EndsAt   *time.Time

	UsageLimit       int // zero means unlimited
	UsagePerCustomer int // zero means unlimited
	UsageCount       int

	Conditions Conditions
	Actions    Actions

	PriceTiers     []discount.Tier // tiered_pricing only
	BundleProducts []BundleProduct // bundle only
}

// Restrictions maps the promotion's actions onto cart restrictions.
func (p *Promotion) Restrictions() cart.Restrictions {
	return cart.Restrictions{
		ApplicableProducts:   p.Actions.ApplicableProducts,
		ExcludedProducts:     p.Actions.ExcludedProducts,
		ApplicableCategories: p.Actions.ApplicableCategories,
		ExcludedCategories:   p.Actions.ExcludedCategories,
	}
}

// DiscountTag returns the discount strategy tag for this promotion.
func (p *Promotion) DiscountTag() discount.Type {
	if p.Type == TypeTieredPricing {
		return discount.TypeTieredPricing
	}
	switch p.DiscountType {
	case DiscountFixedAmount:
		return discount.TypeFixedAmount
	default:
		return discount.TypePercentage
	}
}

// ValidateConfig checks the promotion's variant-specific configuration. It is
// run at admin save time so that malformed rules never reach checkout, and
// again defensively by the resolver, which skips (rather than propagates)
// failures so one bad rule cannot break resolution of the others.
func (p *Promotion) ValidateConfig() error {
	switch p.Type {
	case TypeCatalogRule, TypeCartRule, TypeFlashSale:
		if p.DiscountType != DiscountPercentage && p.DiscountType != DiscountFixedAmount {
			return errors.Errorf("promotion %d: unknown discount type %q", p.ID, p.DiscountType)
		}
		if !p.DiscountValue.IsPositive() {
			return errors.Errorf("promotion %d: discount value must be positive", p.ID)
		}
	case TypeTieredPricing:
		if err := validateTiers(p.PriceTiers); err != nil {
			return errors.Wrapf(err, "promotion %d", p.ID)
		}
	case TypeBundle:
		if len(p.BundleProducts) == 0 {
			return errors.Errorf("promotion %d: bundle has no products", p.ID)
		}
		for _, bp := range p.BundleProducts {
			if bp.ProductID == "" || bp.Quantity <= 0 {
				return errors.Errorf("promotion %d: malformed bundle product", p.ID)
			}
		}
		if !p.DiscountValue.IsPositive() {
			return errors.Errorf("promotion %d: discount value must be positive", p.ID)
		}
	default:
		return errors.Errorf("promotion %d: unknown type %q", p.ID, p.Type)
	}
	return nil
}

// validateTiers enforces ascending, non-overlapping quantity bands. Only the
// last tier may be unbounded (max_quantity = 0).
func validateTiers(tiers []discount.Tier) error {
	if len(tiers) == 0 {
		return errors.New("tiered pricing has no tiers")
	}
	prevMax := 0
	for i, t := range tiers {
		if t.MinQuantity <= 0 {
			return errors.Errorf("tier %d: min_quantity must be positive", i)
		}
		if t.Percent.IsNegative() || t.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return errors.Errorf("tier %d: percent out of range", i)
		}
		if i > 0 && t.MinQuantity <= prevMax {
			return errors.Errorf("tier %d: overlaps previous tier", i)
		}
		if t.MaxQuantity == 0 {
			if i != len(tiers)-1 {
				return errors.Errorf("tier %d: only the last tier may be unbounded", i)
			}
			continue
		}
		if t.MaxQuantity < t.MinQuantity {
			return errors.Errorf("tier %d: max_quantity below min_quantity", i)
		}
		prevMax = t.MaxQuantity
	}
	return nil
}

// Repository provides promotion lookups.
type Repository interface {
	// ListActive returns all promotions currently flagged active.
	ListActive(ctx context.Context) ([]*Promotion, error)
	// GetByID returns a single promotion. Returns ErrNotFound when missing.
	GetByID(ctx context.Context, id int64) (*Promotion, error)
}
