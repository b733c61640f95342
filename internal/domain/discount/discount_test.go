package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkart/commerce/internal/domain/cart"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func inputFor(lines ...cart.Item) Input {
	in := Input{EligibleLines: lines}
	for _, l := range lines {
		in.EligibleSubtotal = in.EligibleSubtotal.Add(l.LineTotal())
	}
	return in
}

func TestCalculate_Percentage(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		params Params
		want   decimal.Decimal
	}{
		{
			name:   "20 percent of 300",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("300")}),
			params: Params{Value: dec("20"), MaxDiscount: dec("100")},
			want:   dec("60"),
		},
		{
			name:   "cap kicks in at max discount",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("600")}),
			params: Params{Value: dec("20"), MaxDiscount: dec("100")},
			want:   dec("100"),
		},
		{
			name:   "uncapped when max discount is zero",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("600")}),
			params: Params{Value: dec("20")},
			want:   dec("120"),
		},
		{
			name:   "rounds to cents",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("19.99")}),
			params: Params{Value: dec("15")},
			want:   dec("3"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(TypePercentage, tt.input, tt.params)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCalculate_FixedAmount(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		params Params
		want   decimal.Decimal
	}{
		{
			name:   "full value below subtotal",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("50")}),
			params: Params{Value: dec("10")},
			want:   dec("10"),
		},
		{
			name:   "capped at subtotal",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("7")}),
			params: Params{Value: dec("10")},
			want:   dec("7"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(TypeFixedAmount, tt.input, tt.params)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCalculate_FreeShipping(t *testing.T) {
	in := inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("30")})
	in.ShippingCost = dec("5.99")

	got, err := Calculate(TypeFreeShipping, in, Params{})
	require.NoError(t, err)
	assert.True(t, dec("5.99").Equal(got))

	in.ShippingCost = decimal.Zero
	got, err = Calculate(TypeFreeShipping, in, Params{})
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "no shipping to waive")
}

func TestCalculate_BuyXGetY(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		params Params
		want   decimal.Decimal
	}{
		{
			name: "buy 2 get 1 frees the cheapest of three",
			input: inputFor(
				cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("30")},
				cart.Item{ProductID: "p2", Quantity: 1, UnitPrice: dec("20")},
				cart.Item{ProductID: "p3", Quantity: 1, UnitPrice: dec("10")},
			),
			params: Params{BuyQuantity: 2, GetQuantity: 1},
			want:   dec("10"),
		},
		{
			name: "incomplete group earns nothing",
			input: inputFor(
				cart.Item{ProductID: "p1", Quantity: 2, UnitPrice: dec("30")},
			),
			params: Params{BuyQuantity: 2, GetQuantity: 1},
			want:   decimal.Zero,
		},
		{
			name: "two complete groups",
			input: inputFor(
				cart.Item{ProductID: "p1", Quantity: 6, UnitPrice: dec("10")},
			),
			params: Params{BuyQuantity: 2, GetQuantity: 1},
			want:   dec("20"),
		},
		{
			name: "buy products filter narrows eligible units",
			input: inputFor(
				cart.Item{ProductID: "p1", Quantity: 3, UnitPrice: dec("10")},
				cart.Item{ProductID: "p2", Quantity: 3, UnitPrice: dec("50")},
			),
			params: Params{BuyQuantity: 2, GetQuantity: 1, BuyProducts: []string{"p1"}},
			want:   dec("10"),
		},
		{
			name: "zero quantities configured",
			input: inputFor(
				cart.Item{ProductID: "p1", Quantity: 3, UnitPrice: dec("10")},
			),
			params: Params{},
			want:   decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(TypeBuyXGetY, tt.input, tt.params)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCalculate_FixedPrice(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		params Params
		want   decimal.Decimal
	}{
		{
			name:   "discount is excess over the fixed price",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("80")}),
			params: Params{Value: dec("50")},
			want:   dec("30"),
		},
		{
			name:   "no discount when already cheaper",
			input:  inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("40")}),
			params: Params{Value: dec("50")},
			want:   decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(TypeFixedPrice, tt.input, tt.params)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCalculate_TieredPricing(t *testing.T) {
	tiers := []Tier{
		{MinQuantity: 3, MaxQuantity: 5, Percent: dec("5")},
		{MinQuantity: 6, MaxQuantity: 0, Percent: dec("10")},
	}

	tests := []struct {
		name string
		qty  int
		want decimal.Decimal
	}{
		{name: "below first tier", qty: 2, want: decimal.Zero},
		{name: "first band", qty: 4, want: dec("2")},    // 5% of 40
		{name: "unbounded band", qty: 8, want: dec("8")}, // 10% of 80
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := inputFor(cart.Item{ProductID: "p1", Quantity: tt.qty, UnitPrice: dec("10")})
			got, err := Calculate(TypeTieredPricing, in, Params{Tiers: tiers})
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCalculate_UnknownType(t *testing.T) {
	_, err := Calculate(Type("mystery"), Input{}, Params{})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestCalculate_NeverExceedsEligibleSubtotal(t *testing.T) {
	in := inputFor(cart.Item{ProductID: "p1", Quantity: 1, UnitPrice: dec("20")})

	got, err := Calculate(TypePercentage, in, Params{Value: dec("100")})
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(got))

	got, err = Calculate(TypeFixedAmount, in, Params{Value: dec("500")})
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(got))
}
