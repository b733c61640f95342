package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/checkout"
	"github.com/openkart/commerce/internal/domain/order"
)

type placeOrderRequest struct {
	CustomerID string        `json:"customer_id"`
	CouponCode string        `json:"coupon_code"`
	Items      []itemRequest `json:"items"`
}

type discountLineResponse struct {
	Source string          `json:"source"`
	ID     int64           `json:"id"`
	Label  string          `json:"label"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type orderItemResponse struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type orderResponse struct {
	ID            uuid.UUID              `json:"id"`
	CustomerID    string                 `json:"customer_id,omitempty"`
	Status        order.Status           `json:"status"`
	PaymentStatus order.PaymentStatus    `json:"payment_status"`
	Subtotal      decimal.Decimal        `json:"subtotal"`
	Tax           decimal.Decimal        `json:"tax"`
	ShippingCost  decimal.Decimal        `json:"shipping_cost"`
	Discount      decimal.Decimal        `json:"discount"`
	Total         decimal.Decimal        `json:"total"`
	CouponCode    string                 `json:"coupon_code,omitempty"`
	Discounts     []discountLineResponse `json:"discounts"`
	Items         []orderItemResponse    `json:"items"`
	DroppedCoupon bool                   `json:"dropped_coupon,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func toOrderResponse(o *order.Order, droppedCoupon bool) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		ShippingCost:  o.ShippingCost,
		Discount:      o.Discount,
		Total:         o.Total,
		CouponCode:    o.CouponCode,
		Discounts:     make([]discountLineResponse, 0, len(o.Discounts)),
		Items:         make([]orderItemResponse, 0, len(o.Items)),
		DroppedCoupon: droppedCoupon,
		CreatedAt:     o.CreatedAt,
	}
	for _, d := range o.Discounts {
		resp.Discounts = append(resp.Discounts, discountLineResponse{
			Source: d.Source,
			ID:     d.ID,
			Label:  d.Label,
			Type:   d.Type,
			Amount: d.Amount,
		})
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:             it.ID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			Price:          it.Price,
			LineTotal:      it.LineTotal,
			TaxAmount:      it.TaxAmount,
			DiscountAmount: it.DiscountAmount,
		})
	}
	return resp
}

// PlaceOrder prices and persists a new order. Coupon rejections surface as
// 422 with the user-facing reason; a coupon dropped to a usage-limit race is
// flagged on the 201 response, never a failure.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	items := make([]checkout.RequestItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = checkout.RequestItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	res, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		CustomerID: req.CustomerID,
		Items:      items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		var (
			rejected *checkout.CouponRejectedError
			notFound *checkout.ProductNotFoundError
		)
		switch {
		case errors.Is(err, checkout.ErrEmptyItems):
			writeError(w, http.StatusBadRequest, "items are required")
		case errors.Is(err, checkout.ErrInvalidQuantity):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &rejected):
			writeError(w, http.StatusUnprocessableEntity, rejected.Message)
		case errors.As(err, &notFound):
			writeError(w, http.StatusUnprocessableEntity, notFound.Error())
		default:
			writeInternalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(res.Order, res.DroppedCoupon))
}

type fulfillmentItemResponse struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	ProductID   string    `json:"product_id"`
	Ordered     int       `json:"ordered"`
	Shipped     int       `json:"shipped"`
	Remaining   int       `json:"remaining"`
}

type shipmentResponse struct {
	ID         uuid.UUID            `json:"id"`
	Status     order.ShipmentStatus `json:"status"`
	Carrier    string               `json:"carrier,omitempty"`
	TrackingNo string               `json:"tracking_no,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

type fulfillmentResponse struct {
	OrderID   uuid.UUID                 `json:"order_id"`
	Status    order.FulfillmentStatus   `json:"status"`
	Items     []fulfillmentItemResponse `json:"items"`
	Shipments []shipmentResponse        `json:"shipments"`
}

// GetFulfillment returns the derived fulfillment view of an order: per-item
// shipped and remaining quantities plus the overall status.
func (h *Handler) GetFulfillment(w http.ResponseWriter, r *http.Request) {
	o, shipments, ok := h.loadOrderWithShipments(w, r)
	if !ok {
		return
	}

	f := order.NewFulfillment(o, shipments)

	resp := fulfillmentResponse{
		OrderID:   o.ID,
		Status:    f.Status(),
		Items:     make([]fulfillmentItemResponse, 0, len(o.Items)),
		Shipments: make([]shipmentResponse, 0, len(shipments)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, fulfillmentItemResponse{
			OrderItemID: it.ID,
			ProductID:   it.ProductID,
			Ordered:     it.Quantity,
			Shipped:     f.ShippedQuantity(it.ID),
			Remaining:   f.RemainingToShip(it.ID),
		})
	}
	for _, s := range shipments {
		resp.Shipments = append(resp.Shipments, shipmentResponse{
			ID:         s.ID,
			Status:     s.Status,
			Carrier:    s.Carrier,
			TrackingNo: s.TrackingNo,
			CreatedAt:  s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type updatePaymentRequest struct {
	Status order.PaymentStatus `json:"status"`
}

type paymentStatusResponse struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
}

// UpdatePayment moves an order's payment status along the payment state
// machine. Illegal transitions are a 409.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order id")
		return
	}

	var req updatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch req.Status {
	case order.PaymentPending, order.PaymentPaid, order.PaymentFailed, order.PaymentRefunded:
	default:
		writeError(w, http.StatusUnprocessableEntity, "unknown payment status")
		return
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	if !o.PaymentStatus.CanTransitionTo(req.Status) {
		writeError(w, http.StatusConflict,
			"cannot move payment from "+string(o.PaymentStatus)+" to "+string(req.Status))
		return
	}

	if err := h.orders.UpdatePaymentStatus(r.Context(), id, req.Status); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, paymentStatusResponse{OrderID: id, PaymentStatus: req.Status})
}

type shipmentItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int       `json:"quantity"`
}

type createShipmentRequest struct {
	Carrier    string                `json:"carrier"`
	TrackingNo string                `json:"tracking_no"`
	Items      []shipmentItemRequest `json:"items"`
}

// CreateShipment records a shipment against an order after checking it would
// not over-ship any line.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	o, shipments, ok := h.loadOrderWithShipments(w, r)
	if !ok {
		return
	}

	var req createShipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}

	s := &order.Shipment{
		ID:         uuid.New(),
		OrderID:    o.ID,
		Status:     order.ShipmentShipped,
		Carrier:    req.Carrier,
		TrackingNo: req.TrackingNo,
		Items:      make([]order.ShipmentItem, 0, len(req.Items)),
		CreatedAt:  time.Now(),
	}
	for _, it := range req.Items {
		s.Items = append(s.Items, order.ShipmentItem{
			ID:          uuid.New(),
			OrderItemID: it.OrderItemID,
			Quantity:    it.Quantity,
		})
	}

	f := order.NewFulfillment(o, shipments)
	if err := f.ValidateShipment(s); err != nil {
		if errors.Is(err, order.ErrOverShipment) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.orders.CreateShipment(r.Context(), s); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, shipmentResponse{
		ID:         s.ID,
		Status:     s.Status,
		Carrier:    s.Carrier,
		TrackingNo: s.TrackingNo,
		CreatedAt:  s.CreatedAt,
	})
}

// loadOrderWithShipments resolves the {id} route param and loads the order
// and its shipments, writing the error response itself on failure.
func (h *Handler) loadOrderWithShipments(w http.ResponseWriter, r *http.Request) (*order.Order, []order.Shipment, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order id")
		return nil, nil, false
	}

	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return nil, nil, false
		}
		writeInternalError(w, r, err)
		return nil, nil, false
	}

	shipments, err := h.orders.ListShipments(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return nil, nil, false
	}
	return o, shipments, true
}
