package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/discount"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cartRule(id int64, priority int) *Promotion {
	return &Promotion{
		ID:            id,
		Name:          "rule",
		Type:          TypeCartRule,
		DiscountType:  DiscountPercentage,
		DiscountValue: dec("10"),
		Active:        true,
		Stackable:     true,
		Priority:      priority,
	}
}

func resolverCart() cart.Snapshot {
	return cart.Snapshot{Items: []cart.Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("25"), CategoryIDs: []int64{1}},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("50"), CategoryIDs: []int64{2}},
	}}
}

func TestResolver_Resolve_Ordering(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	a := cartRule(1, 10)
	b := cartRule(2, 30)
	c := cartRule(3, 30)

	var r Resolver
	got := r.Resolve([]*Promotion{a, b, c}, resolverCart(), "", now)

	require.Len(t, got, 3)
	// Priority descending, ties by ID ascending.
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, int64(1), got[2].ID)
}

func TestResolver_Resolve_StopRulesProcessing(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	high := cartRule(1, 30)
	high.StopRulesProcessing = true
	samePriority := cartRule(2, 30)
	low := cartRule(3, 10)

	var r Resolver
	got := r.Resolve([]*Promotion{low, high, samePriority}, resolverCart(), "", now)

	// Same-priority rules still apply; strictly lower priority is cut off.
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestResolver_Resolve_NonStackable(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	first := cartRule(1, 30)
	first.Stackable = false
	second := cartRule(2, 20)
	second.Stackable = false
	stackable := cartRule(3, 10)

	var r Resolver
	got := r.Resolve([]*Promotion{first, second, stackable}, resolverCart(), "", now)

	// Only the first non-stackable wins; stackable rules still join.
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
}

func TestResolver_Resolve_Matching(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name          string
		mutate        func(*Promotion)
		customerGroup string
		want          bool
	}{
		{name: "plain active rule", mutate: func(*Promotion) {}, want: true},
		{name: "inactive", mutate: func(p *Promotion) { p.Active = false }, want: false},
		{name: "not started", mutate: func(p *Promotion) { p.StartsAt = &future }, want: false},
		{name: "ended", mutate: func(p *Promotion) { p.EndsAt = &past }, want: false},
		{
			name:   "usage exhausted",
			mutate: func(p *Promotion) { p.UsageLimit = 5; p.UsageCount = 5 },
			want:   false,
		},
		{
			name:   "min order amount not met",
			mutate: func(p *Promotion) { p.Conditions.MinOrderAmount = dec("500") },
			want:   false,
		},
		{
			name:   "min items not met",
			mutate: func(p *Promotion) { p.Conditions.MinItems = 5 },
			want:   false,
		},
		{
			name:          "customer group matches",
			mutate:        func(p *Promotion) { p.Conditions.CustomerGroups = []string{"vip"} },
			customerGroup: "vip",
			want:          true,
		},
		{
			name:          "customer group mismatch",
			mutate:        func(p *Promotion) { p.Conditions.CustomerGroups = []string{"vip"} },
			customerGroup: "general",
			want:          false,
		},
		{
			name:   "actions exclude the whole cart",
			mutate: func(p *Promotion) { p.Actions.ApplicableCategories = []int64{99} },
			want:   false,
		},
		{
			name: "bundle satisfied",
			mutate: func(p *Promotion) {
				p.Type = TypeBundle
				p.BundleProducts = []BundleProduct{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}
			},
			want: true,
		},
		{
			name: "bundle missing quantity",
			mutate: func(p *Promotion) {
				p.Type = TypeBundle
				p.BundleProducts = []BundleProduct{{ProductID: "p1", Quantity: 3}}
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cartRule(1, 10)
			tt.mutate(p)

			var r Resolver
			got := r.Resolve([]*Promotion{p}, resolverCart(), tt.customerGroup, now)
			if tt.want {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestResolver_Resolve_SkipsMalformedConfig(t *testing.T) {
	now := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	bad := cartRule(1, 30)
	bad.DiscountValue = decimal.Zero // fails ValidateConfig
	good := cartRule(2, 10)

	var skipped []int64
	r := Resolver{OnSkip: func(p *Promotion, err error) {
		require.Error(t, err)
		skipped = append(skipped, p.ID)
	}}

	got := r.Resolve([]*Promotion{bad, good}, resolverCart(), "", now)

	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, []int64{1}, skipped)
}

func TestPromotion_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		p       Promotion
		wantErr bool
	}{
		{
			name: "valid cart rule",
			p:    Promotion{Type: TypeCartRule, DiscountType: DiscountPercentage, DiscountValue: dec("10")},
		},
		{
			name:    "zero discount value",
			p:       Promotion{Type: TypeFlashSale, DiscountType: DiscountPercentage},
			wantErr: true,
		},
		{
			name:    "unknown discount type",
			p:       Promotion{Type: TypeCatalogRule, DiscountType: "lottery", DiscountValue: dec("10")},
			wantErr: true,
		},
		{
			name:    "unknown promotion type",
			p:       Promotion{Type: "mystery"},
			wantErr: true,
		},
		{
			name: "valid tiers",
			p: Promotion{Type: TypeTieredPricing, PriceTiers: []discount.Tier{
				{MinQuantity: 3, MaxQuantity: 5, Percent: dec("5")},
				{MinQuantity: 6, MaxQuantity: 0, Percent: dec("10")},
			}},
		},
		{
			name:    "no tiers",
			p:       Promotion{Type: TypeTieredPricing},
			wantErr: true,
		},
		{
			name: "overlapping tiers",
			p: Promotion{Type: TypeTieredPricing, PriceTiers: []discount.Tier{
				{MinQuantity: 3, MaxQuantity: 6, Percent: dec("5")},
				{MinQuantity: 5, MaxQuantity: 0, Percent: dec("10")},
			}},
			wantErr: true,
		},
		{
			name: "unbounded tier not last",
			p: Promotion{Type: TypeTieredPricing, PriceTiers: []discount.Tier{
				{MinQuantity: 3, MaxQuantity: 0, Percent: dec("5")},
				{MinQuantity: 6, MaxQuantity: 9, Percent: dec("10")},
			}},
			wantErr: true,
		},
		{
			name: "valid bundle",
			p: Promotion{
				Type: TypeBundle, DiscountValue: dec("15"),
				BundleProducts: []BundleProduct{{ProductID: "p1", Quantity: 1}},
			},
		},
		{
			name:    "bundle without products",
			p:       Promotion{Type: TypeBundle, DiscountValue: dec("15")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.ValidateConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
