package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/openkart/commerce/internal/domain/cart"
)

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type validateCouponRequest struct {
	Code       string        `json:"code"`
	CustomerID string        `json:"customer_id"`
	Items      []itemRequest `json:"items"`
}

type validateCouponResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ValidateCoupon checks a coupon code against the given cart and reports a
// user-facing verdict. Rejections are 200 responses with valid=false; only
// malformed requests and infrastructure failures are errors.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "code and items are required")
		return
	}

	snapshot, err := h.snapshotFromItems(r.Context(), req.Items)
	if err != nil {
		var badItem *badItemError
		if errors.As(err, &badItem) {
			writeError(w, http.StatusUnprocessableEntity, badItem.Error())
			return
		}
		writeInternalError(w, r, err)
		return
	}

	res, err := h.validator.Validate(r.Context(), req.Code, req.CustomerID, snapshot)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	if !res.Valid {
		writeJSON(w, http.StatusOK, validateCouponResponse{Valid: false, Message: res.Message})
		return
	}
	writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid: true,
		Code:  res.Coupon.Code,
	})
}

type badItemError struct {
	message string
}

func (e *badItemError) Error() string { return e.message }

// snapshotFromItems prices the requested items from the catalog and builds a
// cart snapshot.
func (h *Handler) snapshotFromItems(ctx context.Context, items []itemRequest) (cart.Snapshot, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return cart.Snapshot{}, &badItemError{message: "quantity must be greater than 0 for product " + it.ProductID}
		}
		ids[i] = it.ProductID
	}

	fetched, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return cart.Snapshot{}, errors.Wrap(err, "get products")
	}
	byID := make(map[string]int, len(fetched))
	for i, p := range fetched {
		byID[p.ID] = i
	}

	snapshot := cart.Snapshot{Items: make([]cart.Item, 0, len(items))}
	for _, it := range items {
		idx, ok := byID[it.ProductID]
		if !ok {
			return cart.Snapshot{}, &badItemError{message: "product " + it.ProductID + " not found"}
		}
		p := fetched[idx]
		snapshot.Items = append(snapshot.Items, cart.Item{
			ProductID:   p.ID,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			CategoryIDs: p.CategoryIDs,
			OnSale:      p.OnSale,
		})
	}
	return snapshot, nil
}
