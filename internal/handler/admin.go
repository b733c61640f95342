package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/coupon"
	"github.com/openkart/commerce/internal/domain/discount"
	"github.com/openkart/commerce/internal/domain/promotion"
)

type createCouponRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`

	DiscountType string          `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`

	MinOrderAmount decimal.Decimal `json:"min_order_amount"`

	Active           bool `json:"active"`
	AutoApply        bool `json:"auto_apply"`
	Stackable        bool `json:"stackable"`
	ExcludeSaleItems bool `json:"exclude_sale_items"`
	Priority         int  `json:"priority"`

	UsageLimitTotal       int `json:"usage_limit_total"`
	UsageLimitPerCustomer int `json:"usage_limit_per_customer"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	DaysOfWeek []int `json:"days_of_week"`
	TimeFrom   *int  `json:"time_from_minute"`
	TimeUntil  *int  `json:"time_until_minute"`

	CustomerGroups    []string `json:"customer_groups"`
	FirstOrderOnly    bool     `json:"first_order_only"`
	MinAccountAgeDays int      `json:"min_account_age_days"`

	ApplicableProducts   []string `json:"applicable_products"`
	ExcludedProducts     []string `json:"excluded_products"`
	ApplicableCategories []int64  `json:"applicable_categories"`
	ExcludedCategories   []int64  `json:"excluded_categories"`

	BuyQuantity int      `json:"buy_quantity"`
	GetQuantity int      `json:"get_quantity"`
	BuyProducts []string `json:"buy_products"`
}

// validate checks the request at save time so malformed coupons never reach
// the validation chain.
func (req *createCouponRequest) validate() string {
	if req.Code == "" {
		return "code is required"
	}

	dt := coupon.DiscountType(req.DiscountType)
	switch dt {
	case coupon.DiscountPercentage:
		if !req.Value.IsPositive() || req.Value.GreaterThan(decimal.NewFromInt(100)) {
			return "percentage value must be in (0, 100]"
		}
	case coupon.DiscountFixedAmount, coupon.DiscountFixedPrice:
		if !req.Value.IsPositive() {
			return "value must be positive"
		}
	case coupon.DiscountFreeShipping:
	case coupon.DiscountBuyXGetY:
		if req.BuyQuantity <= 0 || req.GetQuantity <= 0 {
			return "buy_quantity and get_quantity must be positive"
		}
	default:
		return "unknown discount type"
	}

	if req.MinOrderAmount.IsNegative() || req.MaxDiscount.IsNegative() {
		return "amounts must not be negative"
	}
	if req.UsageLimitTotal < 0 || req.UsageLimitPerCustomer < 0 {
		return "usage limits must not be negative"
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		return "ends_at must not precede starts_at"
	}
	for _, d := range req.DaysOfWeek {
		if d < 0 || d > 6 {
			return "days_of_week entries must be 0..6"
		}
	}
	if (req.TimeFrom == nil) != (req.TimeUntil == nil) {
		return "time_from_minute and time_until_minute must be set together"
	}
	if req.TimeFrom != nil {
		if *req.TimeFrom < 0 || *req.TimeUntil > 24*60-1 || *req.TimeFrom > *req.TimeUntil {
			return "time window must be a valid minute range within one day"
		}
	}
	return ""
}

func (req *createCouponRequest) toCoupon() *coupon.Coupon {
	c := &coupon.Coupon{
		Code:                  req.Code,
		Description:           req.Description,
		DiscountType:          coupon.DiscountType(req.DiscountType),
		Value:                 req.Value,
		MaxDiscount:           req.MaxDiscount,
		MinOrderAmount:        req.MinOrderAmount,
		Active:                req.Active,
		AutoApply:             req.AutoApply,
		Stackable:             req.Stackable,
		ExcludeSaleItems:      req.ExcludeSaleItems,
		Priority:              req.Priority,
		UsageLimitTotal:       req.UsageLimitTotal,
		UsageLimitPerCustomer: req.UsageLimitPerCustomer,
		StartsAt:              req.StartsAt,
		EndsAt:                req.EndsAt,
		CustomerGroups:        req.CustomerGroups,
		FirstOrderOnly:        req.FirstOrderOnly,
		MinAccountAgeDays:     req.MinAccountAgeDays,
		ApplicableProducts:    req.ApplicableProducts,
		ExcludedProducts:      req.ExcludedProducts,
		ApplicableCategories:  req.ApplicableCategories,
		ExcludedCategories:    req.ExcludedCategories,
		BuyQuantity:           req.BuyQuantity,
		GetQuantity:           req.GetQuantity,
		BuyProducts:           req.BuyProducts,
	}
	for _, d := range req.DaysOfWeek {
		c.DaysOfWeek = append(c.DaysOfWeek, time.Weekday(d))
	}
	if req.TimeFrom != nil && req.TimeUntil != nil {
		c.TimeWindow = &coupon.TimeWindow{FromMinute: *req.TimeFrom, UntilMinute: *req.TimeUntil}
	}
	return c
}

type createdResponse struct {
	ID int64 `json:"id"`
}

// CreateCoupon persists a new coupon after save-time validation.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	c := req.toCoupon()
	if err := h.coupons.Create(r.Context(), c); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: c.ID})
}

type createPromotionRequest struct {
	Name string `json:"name"`
	Type string `json:"promo_type"`

	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MaxDiscount   decimal.Decimal `json:"max_discount"`

	Active               bool `json:"active"`
	StopRulesProcessing  bool `json:"stop_rules_processing"`
	Priority             int  `json:"priority"`
	Stackable            bool `json:"stackable"`
	StackableWithCoupons bool `json:"stackable_with_coupons"`

	BadgeLabel string `json:"badge_label"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	UsageLimit       int `json:"usage_limit"`
	UsagePerCustomer int `json:"usage_per_customer"`

	Conditions promotion.Conditions `json:"conditions"`
	Actions    promotion.Actions    `json:"actions"`

	PriceTiers     []discount.Tier           `json:"price_tiers"`
	BundleProducts []promotion.BundleProduct `json:"bundle_products"`
}

// CreatePromotion persists a new promotion after its variant-specific
// configuration passes validation.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req createPromotionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		writeError(w, http.StatusUnprocessableEntity, "ends_at must not precede starts_at")
		return
	}

	p := &promotion.Promotion{
		Name:                 req.Name,
		Type:                 promotion.Type(req.Type),
		DiscountType:         promotion.DiscountType(req.DiscountType),
		DiscountValue:        req.DiscountValue,
		MaxDiscount:          req.MaxDiscount,
		Active:               req.Active,
		StopRulesProcessing:  req.StopRulesProcessing,
		Priority:             req.Priority,
		Stackable:            req.Stackable,
		StackableWithCoupons: req.StackableWithCoupons,
		BadgeLabel:           req.BadgeLabel,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		UsageLimit:           req.UsageLimit,
		UsagePerCustomer:     req.UsagePerCustomer,
		Conditions:           req.Conditions,
		Actions:              req.Actions,
		PriceTiers:           req.PriceTiers,
		BundleProducts:       req.BundleProducts,
	}
	if err := p.ValidateConfig(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.promotions.Create(r.Context(), p); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: p.ID})
}
