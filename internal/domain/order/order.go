// Package order models placed orders, shipments, and credit memos, and
// derives fulfillment state from them.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. It is independent of PaymentStatus.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

// CanTransitionTo reports whether the status may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusCancelled || target == StatusFailed
	case StatusProcessing:
		return target == StatusCompleted || target == StatusCancelled
	case StatusCompleted:
		return target == StatusRefunded
	case StatusCancelled, StatusRefunded, StatusFailed:
		return false
	}
	return false
}

// PaymentStatus is the payment lifecycle state.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// CanTransitionTo reports whether the payment status may move to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return target == PaymentPaid || target == PaymentFailed
	case PaymentPaid:
		return target == PaymentRefunded
	case PaymentFailed:
		return target == PaymentPending
	case PaymentRefunded:
		return false
	}
	return false
}

// ErrInvalidTransition is returned for disallowed status changes.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound is returned by repositories for unknown order IDs.
var ErrNotFound = errors.New("order not found")

// Item is an order line. Items are immutable once the order is placed;
// corrections happen through credit memos.
type Item struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ProductID      string
	Quantity       int
	Price          decimal.Decimal
	LineTotal      decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// DiscountLine is one applied discount persisted on the order.
type DiscountLine struct {
	Source string          `json:"source"`
	ID     int64           `json:"id"`
	Label  string          `json:"label"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// Order is a placed customer order.
//
// Total is computed at placement time as subtotal + tax + shipping − discount
// and stored, never re-derived.
type Order struct {
	ID            uuid.UUID
	CustomerID    string
	Status        Status
	PaymentStatus PaymentStatus

	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal

	CouponCode string
	Discounts  []DiscountLine

	Items     []Item
	CreatedAt time.Time
}

// ShipmentStatus is the delivery state of one shipment.
type ShipmentStatus string

const (
	ShipmentPending        ShipmentStatus = "pending"
	ShipmentShipped        ShipmentStatus = "shipped"
	ShipmentInTransit      ShipmentStatus = "in_transit"
	ShipmentOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentDelivered      ShipmentStatus = "delivered"
	ShipmentFailed         ShipmentStatus = "failed"
	ShipmentCancelled      ShipmentStatus = "cancelled"
)

// countsTowardFulfillment reports whether this shipment's quantities count
// as shipped. Cancelled and failed shipments do not.
func (s ShipmentStatus) countsTowardFulfillment() bool {
	return s != ShipmentCancelled && s != ShipmentFailed
}

// ShipmentItem ties a shipped quantity to an order item.
type ShipmentItem struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	Quantity    int
}

// Shipment is one physical dispatch against an order.
type Shipment struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	Status     ShipmentStatus
	Carrier    string
	TrackingNo string
	Items      []ShipmentItem
	CreatedAt  time.Time
}

// CreditMemoStatus is the refund document lifecycle state.
type CreditMemoStatus string

const (
	CreditMemoPending   CreditMemoStatus = "pending"
	CreditMemoComplete  CreditMemoStatus = "complete"
	CreditMemoCancelled CreditMemoStatus = "cancelled"
)

// CreditMemoItem records a refunded quantity against an order item.
type CreditMemoItem struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	QtyRefunded int
}

// CreditMemo records a refund against an order. Once complete it is immutable.
type CreditMemo struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Status           CreditMemoStatus
	RefundAmount     decimal.Decimal
	RestoreInventory bool
	Items            []CreditMemoItem
	CreatedAt        time.Time
}

// Complete moves a pending memo to complete.
func (m *CreditMemo) Complete() error {
	if m.Status != CreditMemoPending {
		return errors.Wrapf(ErrInvalidTransition, "credit memo %s is %s", m.ID, m.Status)
	}
	m.Status = CreditMemoComplete
	return nil
}

// Cancel moves a pending memo to cancelled.
func (m *CreditMemo) Cancel() error {
	if m.Status != CreditMemoPending {
		return errors.Wrapf(ErrInvalidTransition, "credit memo %s is %s", m.ID, m.Status)
	}
	m.Status = CreditMemoCancelled
	return nil
}

// ErrOrderNotPaid is returned when a refund is drafted against an unpaid order.
var ErrOrderNotPaid = errors.New("order is not paid")

// ErrRefundExceedsOrder is returned when a credit memo refunds more money or
// more units than the order captured.
var ErrRefundExceedsOrder = errors.New("refund exceeds order")

// ValidateCreditMemo checks a draft memo against the order it refunds: only
// paid orders are refundable, the amount must fit within the order total, and
// every refunded line must map to an order item without exceeding its
// quantity.
func ValidateCreditMemo(o *Order, m *CreditMemo) error {
	if o.PaymentStatus != PaymentPaid {
		return errors.Wrapf(ErrOrderNotPaid, "order %s", o.ID)
	}
	if !m.RefundAmount.IsPositive() || m.RefundAmount.GreaterThan(o.Total) {
		return errors.Wrapf(ErrRefundExceedsOrder, "refund %s against total %s", m.RefundAmount, o.Total)
	}

	ordered := make(map[uuid.UUID]int, len(o.Items))
	for _, it := range o.Items {
		ordered[it.ID] = it.Quantity
	}
	for _, it := range m.Items {
		qty, ok := ordered[it.OrderItemID]
		if !ok {
			return errors.Errorf("credit memo references unknown order item %s", it.OrderItemID)
		}
		if it.QtyRefunded <= 0 || it.QtyRefunded > qty {
			return errors.Wrapf(ErrRefundExceedsOrder, "item %s refunds %d of %d", it.OrderItemID, it.QtyRefunded, qty)
		}
	}
	return nil
}

// Repository defines persistence operations for orders and their children.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
	ListShipments(ctx context.Context, orderID uuid.UUID) ([]Shipment, error)
	CreateShipment(ctx context.Context, s *Shipment) error
	CreateCreditMemo(ctx context.Context, m *CreditMemo) error
	GetCreditMemo(ctx context.Context, id uuid.UUID) (*CreditMemo, error)
	// UpdateCreditMemoStatus persists a lifecycle move out of pending. Returns
	// ErrInvalidTransition when the stored memo already left pending.
	UpdateCreditMemoStatus(ctx context.Context, id uuid.UUID, status CreditMemoStatus) error
}
