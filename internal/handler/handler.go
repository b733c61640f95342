// Package handler exposes the checkout core over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/openkart/commerce/internal/domain/auth"
	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/checkout"
	"github.com/openkart/commerce/internal/domain/coupon"
	"github.com/openkart/commerce/internal/domain/order"
	"github.com/openkart/commerce/internal/domain/product"
	"github.com/openkart/commerce/internal/domain/promotion"
)

// Validator is satisfied by coupon.Validator.
type Validator interface {
	Validate(ctx context.Context, code, customerID string, c cart.Snapshot) (coupon.Result, error)
}

// CouponStore is the admin-facing write surface for coupons.
type CouponStore interface {
	Create(ctx context.Context, c *coupon.Coupon) error
}

// PromotionStore is the admin-facing write surface for promotions.
type PromotionStore interface {
	Create(ctx context.Context, p *promotion.Promotion) error
}

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	products   product.Repository
	orders     order.Repository
	checkout   *checkout.Service
	validator  Validator
	coupons    CouponStore
	promotions PromotionStore
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	orders order.Repository,
	checkoutSvc *checkout.Service,
	validator Validator,
	coupons CouponStore,
	promotions PromotionStore,
) *Handler {
	return &Handler{
		products:   products,
		orders:     orders,
		checkout:   checkoutSvc,
		validator:  validator,
		coupons:    coupons,
		promotions: promotions,
	}
}

// Router builds the API route tree. Admin routes sit behind the API key
// middleware; everything else is public.
func (h *Handler) Router(apikeys auth.Repository, pepper []byte) http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Post("/coupons/validate", h.ValidateCoupon)
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders/{id}/fulfillment", h.GetFulfillment)

	r.Route("/admin", func(r chi.Router) {
		r.Use(APIKeyAuth(apikeys, pepper, auth.ScopeAdmin))
		r.Post("/coupons", h.CreateCoupon)
		r.Post("/promotions", h.CreatePromotion)
		r.Post("/orders/{id}/payment", h.UpdatePayment)
		r.Post("/orders/{id}/shipments", h.CreateShipment)
		r.Post("/orders/{id}/credit-memos", h.CreateCreditMemo)
		r.Post("/credit-memos/{id}/complete", h.CompleteCreditMemo)
		r.Post("/credit-memos/{id}/cancel", h.CancelCreditMemo)
	})

	return r
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

// writeInternalError logs the cause and responds with an opaque 500.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}
