package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSnapshot_Subtotal(t *testing.T) {
	s := Snapshot{Items: []Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("10.50")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("4.00")},
	}}

	assert.True(t, dec("25").Equal(s.Subtotal()))
	assert.Equal(t, 3, s.TotalQuantity())
}

func TestSnapshot_EligibleLines(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 1, UnitPrice: dec("10"), CategoryIDs: []int64{1}},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("20"), CategoryIDs: []int64{2}},
		{ProductID: "p3", Quantity: 1, UnitPrice: dec("30"), CategoryIDs: []int64{2}, OnSale: true},
	}
	s := Snapshot{Items: items}

	tests := []struct {
		name         string
		restrictions Restrictions
		wantProducts []string
	}{
		{
			name:         "no restrictions keeps everything",
			restrictions: Restrictions{},
			wantProducts: []string{"p1", "p2", "p3"},
		},
		{
			name:         "excluded product is removed",
			restrictions: Restrictions{ExcludedProducts: []string{"p2"}},
			wantProducts: []string{"p1", "p3"},
		},
		{
			name:         "excluded category removes matching lines",
			restrictions: Restrictions{ExcludedCategories: []int64{2}},
			wantProducts: []string{"p1"},
		},
		{
			name:         "applicable products narrow the set",
			restrictions: Restrictions{ApplicableProducts: []string{"p2"}},
			wantProducts: []string{"p2"},
		},
		{
			name:         "applicable category matches by intersection",
			restrictions: Restrictions{ApplicableCategories: []int64{2}},
			wantProducts: []string{"p2", "p3"},
		},
		{
			name:         "sale items excluded",
			restrictions: Restrictions{ExcludeSaleItems: true},
			wantProducts: []string{"p1", "p2"},
		},
		{
			name: "exclusion wins over applicability",
			restrictions: Restrictions{
				ApplicableCategories: []int64{2},
				ExcludedProducts:     []string{"p3"},
			},
			wantProducts: []string{"p2"},
		},
		{
			name:         "nothing eligible",
			restrictions: Restrictions{ApplicableProducts: []string{"p9"}},
			wantProducts: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.EligibleLines(tt.restrictions)
			ids := make([]string, 0, len(got))
			for _, it := range got {
				ids = append(ids, it.ProductID)
			}
			assert.Equal(t, tt.wantProducts, ids)
		})
	}
}

func TestSnapshot_EligibleSubtotal(t *testing.T) {
	s := Snapshot{Items: []Item{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("10")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("5")},
	}}

	got := s.EligibleSubtotal(Restrictions{ApplicableProducts: []string{"p1"}})
	assert.True(t, dec("20").Equal(got))
}
