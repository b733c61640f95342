package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreditMemo(t *testing.T) {
	itemID := uuid.New()
	baseOrder := func() *Order {
		return &Order{
			ID:            uuid.New(),
			Status:        StatusProcessing,
			PaymentStatus: PaymentPaid,
			Total:         decimal.RequireFromString("50"),
			Items:         []Item{{ID: itemID, ProductID: "p1", Quantity: 2}},
		}
	}
	memo := func(amount string, items ...CreditMemoItem) *CreditMemo {
		return &CreditMemo{
			ID:           uuid.New(),
			Status:       CreditMemoPending,
			RefundAmount: decimal.RequireFromString(amount),
			Items:        items,
		}
	}

	tests := []struct {
		name    string
		order   *Order
		memo    *CreditMemo
		wantErr error
	}{
		{
			name:  "full refund of a paid order",
			order: baseOrder(),
			memo:  memo("50", CreditMemoItem{OrderItemID: itemID, QtyRefunded: 2}),
		},
		{
			name:  "partial refund without line items",
			order: baseOrder(),
			memo:  memo("10"),
		},
		{
			name: "unpaid order",
			order: func() *Order {
				o := baseOrder()
				o.PaymentStatus = PaymentPending
				return o
			}(),
			memo:    memo("10"),
			wantErr: ErrOrderNotPaid,
		},
		{
			name:    "refund above order total",
			order:   baseOrder(),
			memo:    memo("50.01"),
			wantErr: ErrRefundExceedsOrder,
		},
		{
			name:    "zero refund",
			order:   baseOrder(),
			memo:    memo("0"),
			wantErr: ErrRefundExceedsOrder,
		},
		{
			name:    "refunded quantity above ordered quantity",
			order:   baseOrder(),
			memo:    memo("10", CreditMemoItem{OrderItemID: itemID, QtyRefunded: 3}),
			wantErr: ErrRefundExceedsOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreditMemo(tt.order, tt.memo)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("unknown order item", func(t *testing.T) {
		err := ValidateCreditMemo(baseOrder(), memo("10", CreditMemoItem{OrderItemID: uuid.New(), QtyRefunded: 1}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown order item")
	})
}

func TestCreditMemo_LifecycleBasic(t *testing.T) {
	m := &CreditMemo{ID: uuid.New(), Status: CreditMemoPending}

	require.NoError(t, m.Complete())
	assert.Equal(t, CreditMemoComplete, m.Status)

	assert.ErrorIs(t, m.Complete(), ErrInvalidTransition)
	assert.ErrorIs(t, m.Cancel(), ErrInvalidTransition)

	m2 := &CreditMemo{ID: uuid.New(), Status: CreditMemoPending}
	require.NoError(t, m2.Cancel())
	assert.Equal(t, CreditMemoCancelled, m2.Status)
}
