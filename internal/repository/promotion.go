package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/commerce/internal/domain/discount"
	"github.com/openkart/commerce/internal/domain/promotion"
)

const promotionColumns = `id, name, promo_type, discount_type, discount_value,
	COALESCE(max_discount, 0), active, stop_rules_processing, priority,
	stackable, stackable_with_coupons, badge_label, starts_at, ends_at,
	usage_limit, usage_per_customer, usage_count,
	conditions, actions, price_tiers, bundle_products`

const (
	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE active = TRUE ORDER BY priority DESC, id`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE id = $1`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns all active promotions in priority order.
func (r *PromotionRepository) ListActive(ctx context.Context) ([]*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}

	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}

	out := make([]*promotion.Promotion, len(promos))
	for i := range promos {
		out[i] = &promos[i]
	}
	return out, nil
}

// GetByID returns a single promotion by ID.
func (r *PromotionRepository) GetByID(ctx context.Context, id int64) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion %d: %w", id, err)
	}
	return &p, nil
}

const insertPromotionSQL = `INSERT INTO promotions
	(name, promo_type, discount_type, discount_value, max_discount,
	active, stop_rules_processing, priority, stackable, stackable_with_coupons,
	badge_label, starts_at, ends_at, usage_limit, usage_per_customer,
	conditions, actions, price_tiers, bundle_products)
	VALUES ($1, $2, $3, $4, NULLIF($5, 0::numeric), $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19)
	RETURNING id`

// Create persists a new promotion and fills in its generated ID. The
// variant-specific configuration must already have passed ValidateConfig.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	conditionsJSON, err := json.Marshal(p.Conditions)
	if err != nil {
		return fmt.Errorf("marshaling conditions: %w", err)
	}
	actionsJSON, err := json.Marshal(p.Actions)
	if err != nil {
		return fmt.Errorf("marshaling actions: %w", err)
	}

	var tiersJSON, bundleJSON []byte
	if p.PriceTiers != nil {
		if tiersJSON, err = json.Marshal(p.PriceTiers); err != nil {
			return fmt.Errorf("marshaling price tiers: %w", err)
		}
	}
	if p.BundleProducts != nil {
		if bundleJSON, err = json.Marshal(p.BundleProducts); err != nil {
			return fmt.Errorf("marshaling bundle products: %w", err)
		}
	}

	err = r.pool.QueryRow(ctx, insertPromotionSQL,
		p.Name, p.Type, p.DiscountType, p.DiscountValue, p.MaxDiscount,
		p.Active, p.StopRulesProcessing, p.Priority, p.Stackable, p.StackableWithCoupons,
		p.BadgeLabel, p.StartsAt, p.EndsAt, p.UsageLimit, p.UsagePerCustomer,
		conditionsJSON, actionsJSON, tiersJSON, bundleJSON,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.Name, err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p              promotion.Promotion
		promoType      string
		discountType   string
		startsAt       *time.Time
		endsAt         *time.Time
		conditionsJSON []byte
		actionsJSON    []byte
		tiersJSON      []byte
		bundleJSON     []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &promoType, &discountType, &p.DiscountValue,
		&p.MaxDiscount, &p.Active, &p.StopRulesProcessing, &p.Priority,
		&p.Stackable, &p.StackableWithCoupons, &p.BadgeLabel, &startsAt, &endsAt,
		&p.UsageLimit, &p.UsagePerCustomer, &p.UsageCount,
		&conditionsJSON, &actionsJSON, &tiersJSON, &bundleJSON,
	)
	if err != nil {
		return promotion.Promotion{}, err
	}

	p.Type = promotion.Type(promoType)
	p.DiscountType = promotion.DiscountType(discountType)
	p.StartsAt = startsAt
	p.EndsAt = endsAt

	// The JSON columns are validated at admin save time. If a row is corrupted
	// anyway, disable just that promotion instead of failing the whole batch:
	// one bad rule must not break resolution of the others.
	if err := json.Unmarshal(conditionsJSON, &p.Conditions); err != nil {
		p.Active = false
		return p, nil
	}
	if err := json.Unmarshal(actionsJSON, &p.Actions); err != nil {
		p.Active = false
		return p, nil
	}
	if len(tiersJSON) > 0 {
		var tiers []discount.Tier
		if err := json.Unmarshal(tiersJSON, &tiers); err != nil {
			p.Active = false
			return p, nil
		}
		p.PriceTiers = tiers
	}
	if len(bundleJSON) > 0 {
		var bundle []promotion.BundleProduct
		if err := json.Unmarshal(bundleJSON, &bundle); err != nil {
			p.Active = false
			return p, nil
		}
		p.BundleProducts = bundle
	}
	return p, nil
}
