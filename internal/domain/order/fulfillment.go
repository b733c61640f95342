package order

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// FulfillmentStatus describes how much of an order's quantity has shipped.
// It is derived on read, never stored.
type FulfillmentStatus string

const (
	Unfulfilled      FulfillmentStatus = "unfulfilled"
	PartiallyShipped FulfillmentStatus = "partially_shipped"
	FullyShipped     FulfillmentStatus = "fully_shipped"
)

// ErrOverShipment is returned when recording a shipment would push an order
// item's shipped quantity past its ordered quantity.
var ErrOverShipment = errors.New("shipment exceeds remaining quantity")

// Fulfillment is the derived shipping view of one order.
type Fulfillment struct {
	order     *Order
	shippedBy map[uuid.UUID]int
}

// NewFulfillment computes the shipped quantity per order item from the given
// shipments, counting only those whose status is not cancelled or failed.
func NewFulfillment(o *Order, shipments []Shipment) *Fulfillment {
	shipped := make(map[uuid.UUID]int, len(o.Items))
	for _, s := range shipments {
		if !s.Status.countsTowardFulfillment() {
			continue
		}
		for _, si := range s.Items {
			shipped[si.OrderItemID] += si.Quantity
		}
	}
	return &Fulfillment{order: o, shippedBy: shipped}
}

// ShippedQuantity returns the counted shipped quantity for an order item.
func (f *Fulfillment) ShippedQuantity(orderItemID uuid.UUID) int {
	return f.shippedBy[orderItemID]
}

// RemainingToShip returns max(0, ordered − shipped) for an order item.
func (f *Fulfillment) RemainingToShip(orderItemID uuid.UUID) int {
	for _, it := range f.order.Items {
		if it.ID == orderItemID {
			remaining := it.Quantity - f.shippedBy[orderItemID]
			if remaining < 0 {
				return 0
			}
			return remaining
		}
	}
	return 0
}

// Status derives the order's fulfillment status: fully shipped when every
// line has shipped at least its ordered quantity, partially shipped when any
// quantity has shipped, unfulfilled otherwise.
func (f *Fulfillment) Status() FulfillmentStatus {
	if len(f.order.Items) == 0 {
		return Unfulfilled
	}

	anyShipped := false
	allShipped := true
	for _, it := range f.order.Items {
		shipped := f.shippedBy[it.ID]
		if shipped > 0 {
			anyShipped = true
		}
		if shipped < it.Quantity {
			allShipped = false
		}
	}

	switch {
	case allShipped:
		return FullyShipped
	case anyShipped:
		return PartiallyShipped
	default:
		return Unfulfilled
	}
}

// CanBeShipped reports whether a new shipment may be recorded: the order must
// be paid, not cancelled, and not already fully shipped.
func (f *Fulfillment) CanBeShipped() bool {
	return f.order.PaymentStatus == PaymentPaid &&
		f.order.Status != StatusCancelled &&
		f.Status() != FullyShipped
}

// ValidateShipment checks a proposed shipment against the remaining
// quantities, enforcing that no order item is ever over-shipped.
func (f *Fulfillment) ValidateShipment(s *Shipment) error {
	if !f.CanBeShipped() {
		return errors.Errorf("order %s cannot be shipped", f.order.ID)
	}
	for _, si := range s.Items {
		if si.Quantity <= 0 {
			return errors.Errorf("shipment item %s: quantity must be positive", si.OrderItemID)
		}
		if si.Quantity > f.RemainingToShip(si.OrderItemID) {
			return errors.Wrapf(ErrOverShipment, "order item %s", si.OrderItemID)
		}
	}
	return nil
}
