package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/openkart/commerce/internal/domain/cart"
	"github.com/openkart/commerce/internal/domain/customer"
	"github.com/openkart/commerce/internal/domain/ledger"
)

// Result is the outcome of validating a coupon code. An inapplicable coupon
// is not an error: Valid is false and Message carries a user-facing reason
// that never exposes configured limits.
type Result struct {
	Valid   bool
	Coupon  *Coupon
	Message string
}

// Rejection messages shown to customers. Kept deliberately vague about
// configured thresholds.
const (
	msgNotFound        = "invalid coupon code"
	msgExpired         = "this coupon is expired or not yet active"
	msgWrongTime       = "this coupon is not valid at this time"
	msgMinOrder        = "your order does not meet the minimum amount for this coupon"
	msgFirstOrderOnly  = "this coupon is only valid on your first order"
	msgAccountTooNew   = "your account is too new to use this coupon"
	msgWrongGroup      = "this coupon is not available for your account"
	msgSignInRequired  = "sign in to use this coupon"
	msgExhausted       = "this coupon is no longer available"
	msgCustomerLimit   = "you have already used this coupon the maximum number of times"
	msgNoEligibleItems = "this coupon does not apply to any items in your cart"
)

// Validator runs the ordered coupon eligibility checks. It performs reads
// only; usage is reserved later, at order placement, by the ledger.
type Validator struct {
	coupons   Repository
	customers customer.Repository
	usage     ledger.Ledger
	now       func() time.Time
}

// NewValidator creates a Validator with the required lookups.
func NewValidator(coupons Repository, customers customer.Repository, usage ledger.Ledger) *Validator {
	return &Validator{
		coupons:   coupons,
		customers: customers,
		usage:     usage,
		now:       time.Now,
	}
}

// Validate checks code against the cart and customer, short-circuiting on the
// first failed check. Infrastructure failures (lookup errors) are returned as
// errors; rule failures come back as a Result with Valid=false.
//
// Calling Validate twice with the same inputs and no intervening ledger write
// yields the same result.
func (v *Validator) Validate(ctx context.Context, code, customerID string, c cart.Snapshot) (Result, error) {
	cpn, err := v.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(msgNotFound), nil
		}
		return Result{}, errors.Wrap(err, "lookup coupon")
	}
	return v.check(ctx, cpn, customerID, c)
}

// AutoApply picks the coupon to apply when the customer entered no code.
// Candidates come back from the repository in priority order and the first one
// that passes the full rule chain wins. Nil coupon, nil error means none apply.
func (v *Validator) AutoApply(ctx context.Context, customerID string, c cart.Snapshot) (*Coupon, error) {
	candidates, err := v.coupons.ListAutoApply(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply coupons")
	}

	for _, cpn := range candidates {
		res, err := v.check(ctx, cpn, customerID, c)
		if err != nil {
			return nil, err
		}
		if res.Valid {
			return res.Coupon, nil
		}
	}
	return nil, nil
}

// check runs the ordered rule chain against an already-loaded coupon.
func (v *Validator) check(ctx context.Context, cpn *Coupon, customerID string, c cart.Snapshot) (Result, error) {
	now := v.now()

	if cpn.StartsAt != nil && now.Before(*cpn.StartsAt) {
		return reject(msgExpired), nil
	}
	if cpn.EndsAt != nil && now.After(*cpn.EndsAt) {
		return reject(msgExpired), nil
	}

	if len(cpn.DaysOfWeek) > 0 && !weekdayAllowed(cpn.DaysOfWeek, now.Weekday()) {
		return reject(msgWrongTime), nil
	}
	if cpn.TimeWindow != nil && !cpn.TimeWindow.Contains(now) {
		return reject(msgWrongTime), nil
	}

	if cpn.MinOrderAmount.IsPositive() && c.Subtotal().LessThan(cpn.MinOrderAmount) {
		return reject(msgMinOrder), nil
	}

	if res, done, err := v.checkCustomer(ctx, cpn, customerID, now); done {
		return res, err
	}

	if cpn.UsageLimitTotal > 0 && cpn.UsageCount >= cpn.UsageLimitTotal {
		return reject(msgExhausted), nil
	}

	if cpn.UsageLimitPerCustomer > 0 && customerID != "" {
		used, err := v.usage.CountByCustomer(ctx, ledger.SourceCoupon, cpn.ID, customerID)
		if err != nil {
			return Result{}, errors.Wrap(err, "count coupon usage")
		}
		if used >= cpn.UsageLimitPerCustomer {
			return reject(msgCustomerLimit), nil
		}
	}

	if len(c.EligibleLines(cpn.Restrictions())) == 0 {
		return reject(msgNoEligibleItems), nil
	}

	return Result{Valid: true, Coupon: cpn}, nil
}

// checkCustomer runs the customer-bound checks (first order, account age,
// group). done is true when the caller should return res/err immediately.
func (v *Validator) checkCustomer(ctx context.Context, cpn *Coupon, customerID string, now time.Time) (res Result, done bool, err error) {
	needsProfile := cpn.FirstOrderOnly || cpn.MinAccountAgeDays > 0 || len(cpn.CustomerGroups) > 0
	if !needsProfile {
		return Result{}, false, nil
	}

	// Customer-bound coupons are not usable by guests.
	if customerID == "" {
		return reject(msgSignInRequired), true, nil
	}

	profile, err := v.customers.GetProfile(ctx, customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return reject(msgSignInRequired), true, nil
		}
		return Result{}, true, errors.Wrap(err, "lookup customer")
	}

	if cpn.FirstOrderOnly && profile.CompletedOrders > 0 {
		return reject(msgFirstOrderOnly), true, nil
	}

	if cpn.MinAccountAgeDays > 0 {
		minAge := time.Duration(cpn.MinAccountAgeDays) * 24 * time.Hour
		if profile.AccountAge(now) < minAge {
			return reject(msgAccountTooNew), true, nil
		}
	}

	if len(cpn.CustomerGroups) > 0 && !groupAllowed(cpn.CustomerGroups, profile.Group) {
		return reject(msgWrongGroup), true, nil
	}

	return Result{}, false, nil
}

func reject(msg string) Result {
	return Result{Valid: false, Message: msg}
}

func weekdayAllowed(days []time.Weekday, d time.Weekday) bool {
	for _, allowed := range days {
		if allowed == d {
			return true
		}
	}
	return false
}

func groupAllowed(groups []string, g string) bool {
	for _, allowed := range groups {
		if allowed == g {
			return true
		}
	}
	return false
}
