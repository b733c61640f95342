package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/order"
)

type creditMemoItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	QtyRefunded int       `json:"qty_refunded"`
}

type createCreditMemoRequest struct {
	RefundAmount     decimal.Decimal         `json:"refund_amount"`
	RestoreInventory bool                    `json:"restore_inventory"`
	Items            []creditMemoItemRequest `json:"items"`
}

type creditMemoResponse struct {
	ID           uuid.UUID              `json:"id"`
	OrderID      uuid.UUID              `json:"order_id"`
	Status       order.CreditMemoStatus `json:"status"`
	RefundAmount decimal.Decimal        `json:"refund_amount"`
	CreatedAt    time.Time              `json:"created_at"`
}

func toCreditMemoResponse(m *order.CreditMemo) creditMemoResponse {
	return creditMemoResponse{
		ID:           m.ID,
		OrderID:      m.OrderID,
		Status:       m.Status,
		RefundAmount: m.RefundAmount,
		CreatedAt:    m.CreatedAt,
	}
}

// CreateCreditMemo drafts a pending refund against a paid order. Over-refunds
// are a 409, refunds against unpaid orders a 422.
func (h *Handler) CreateCreditMemo(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order id")
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

	var req createCreditMemoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m := &order.CreditMemo{
		ID:               uuid.New(),
		OrderID:          o.ID,
		Status:           order.CreditMemoPending,
		RefundAmount:     req.RefundAmount,
		RestoreInventory: req.RestoreInventory,
		Items:            make([]order.CreditMemoItem, 0, len(req.Items)),
		CreatedAt:        time.Now(),
	}
	for _, it := range req.Items {
		m.Items = append(m.Items, order.CreditMemoItem{
			ID:          uuid.New(),
			OrderItemID: it.OrderItemID,
			QtyRefunded: it.QtyRefunded,
		})
	}

	if err := order.ValidateCreditMemo(o, m); err != nil {
		if errors.Is(err, order.ErrRefundExceedsOrder) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.orders.CreateCreditMemo(r.Context(), m); err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCreditMemoResponse(m))
}

// CompleteCreditMemo finalizes a pending memo. Complete memos are immutable.
func (h *Handler) CompleteCreditMemo(w http.ResponseWriter, r *http.Request) {
	h.moveCreditMemo(w, r, (*order.CreditMemo).Complete)
}

// CancelCreditMemo voids a pending memo.
func (h *Handler) CancelCreditMemo(w http.ResponseWriter, r *http.Request) {
	h.moveCreditMemo(w, r, (*order.CreditMemo).Cancel)
}

func (h *Handler) moveCreditMemo(w http.ResponseWriter, r *http.Request, move func(*order.CreditMemo) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed credit memo id")
		return
	}

	m, err := h.orders.GetCreditMemo(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "credit memo not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	if err := move(m); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	if err := h.orders.UpdateCreditMemoStatus(r.Context(), id, m.Status); err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCreditMemoResponse(m))
}
