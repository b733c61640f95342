// Command seed-db loads the demo catalog, a few customers, demo coupons and
// promotions, and the default admin API key into the database.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/repository"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	CategoryIDs []int64         `json:"category_ids"`
	OnSale      bool            `json:"on_sale"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category_ids, on_sale)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, price = EXCLUDED.price,
		category_ids = EXCLUDED.category_ids, on_sale = EXCLUDED.on_sale`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.CategoryIDs, p.OnSale,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCustomerSQL = `INSERT INTO customers (id, email, customer_group, created_at)
	VALUES ($1, $2, $3, now() - $4::interval)
	ON CONFLICT (id) DO UPDATE SET
		email = EXCLUDED.email, customer_group = EXCLUDED.customer_group`

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo customers")

	customers := []struct {
		id, email, group, age string
	}{
		{"cust-alice", "alice@example.com", "vip", "400 days"},
		{"cust-bob", "bob@example.com", "general", "45 days"},
		{"cust-carol", "carol@example.com", "general", "2 days"},
	}

	for _, c := range customers {
		if _, err := pool.Exec(ctx, upsertCustomerSQL, c.id, c.email, c.group, c.age); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.id)
		}

		slog.Info("upserted customer", slog.String("id", c.id), slog.String("group", c.group))
	}

	return nil
}

const upsertCouponSQL = `INSERT INTO coupons
	(code, description, discount_type, value, max_discount, min_order_amount,
	active, stackable, first_order_only, buy_quantity, get_quantity)
	VALUES ($1, $2, $3, $4, NULLIF($5, 0::numeric), NULLIF($6, 0::numeric),
	TRUE, $7, $8, $9, $10)
	ON CONFLICT (UPPER(code)) DO UPDATE SET
		description = EXCLUDED.description,
		discount_type = EXCLUDED.discount_type,
		value = EXCLUDED.value,
		max_discount = EXCLUDED.max_discount,
		min_order_amount = EXCLUDED.min_order_amount,
		stackable = EXCLUDED.stackable,
		first_order_only = EXCLUDED.first_order_only,
		buy_quantity = EXCLUDED.buy_quantity,
		get_quantity = EXCLUDED.get_quantity`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	coupons := []struct {
		code, description, discountType string
		value, maxDiscount, minOrder    decimal.Decimal
		stackable, firstOrderOnly       bool
		buyQuantity, getQuantity        int
	}{
		{
			code: "SAVE20", description: "20% off, up to $100",
			discountType: "percentage",
			value:        decimal.NewFromInt(20), maxDiscount: decimal.NewFromInt(100),
			stackable: true,
		},
		{
			code: "TENOFF", description: "$10 off orders over $50",
			discountType: "fixed_amount",
			value:        decimal.NewFromInt(10), minOrder: decimal.NewFromInt(50),
			stackable: true,
		},
		{
			code: "FREESHIP", description: "Free shipping on any order",
			discountType: "free_shipping",
			stackable:    true,
		},
		{
			code: "BUY2GET1", description: "Buy 2 get 1 free",
			discountType: "buy_x_get_y",
			buyQuantity:  2, getQuantity: 1,
			stackable: false,
		},
		{
			code: "WELCOME10", description: "First order: 10% off",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			stackable:    true, firstOrderOnly: true,
		},
	}

	for _, c := range coupons {
		if _, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.description, c.discountType, c.value, c.maxDiscount, c.minOrder,
			c.stackable, c.firstOrderOnly, c.buyQuantity, c.getQuantity,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

const insertPromotionSQL = `INSERT INTO promotions
	(name, promo_type, discount_type, discount_value, active,
	stop_rules_processing, priority, stackable, stackable_with_coupons,
	badge_label, conditions, actions, price_tiers)
	SELECT $1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10, $11, $12
	WHERE NOT EXISTS (SELECT 1 FROM promotions WHERE name = $1)`

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo promotions")

	promotions := []struct {
		name, promoType, discountType string
		value                         decimal.Decimal
		stopRules                     bool
		priority                      int
		stackable, withCoupons        bool
		badge                         string
		conditions, actions, tiers    string
	}{
		{
			name: "Appliance flash sale", promoType: "flash_sale",
			discountType: "percentage", value: decimal.NewFromInt(15),
			priority: 20, stackable: true, withCoupons: true,
			badge:      "15% OFF",
			conditions: `{}`,
			actions:    `{"applicable_categories": [11]}`,
		},
		{
			name: "Spend $100 save $10", promoType: "cart_rule",
			discountType: "fixed_amount", value: decimal.NewFromInt(10),
			priority: 10, stackable: true, withCoupons: true,
			conditions: `{"min_order_amount": "100"}`,
			actions:    `{}`,
		},
		{
			name: "Bean volume pricing", promoType: "tiered_pricing",
			discountType: "percentage", value: decimal.Zero,
			priority: 5, stackable: true, withCoupons: false,
			conditions: `{}`,
			actions:    `{"applicable_categories": [20]}`,
			tiers: `[{"min_quantity": 3, "max_quantity": 5, "percent": "5"},
				{"min_quantity": 6, "max_quantity": 0, "percent": "10"}]`,
		},
	}

	for _, p := range promotions {
		var tiers any
		if p.tiers != "" {
			tiers = []byte(p.tiers)
		}
		if _, err := pool.Exec(ctx, insertPromotionSQL,
			p.name, p.promoType, p.discountType, p.value,
			p.stopRules, p.priority, p.stackable, p.withCoupons,
			p.badge, []byte(p.conditions), []byte(p.actions), tiers,
		); err != nil {
			return errors.Wrapf(err, "insert promotion %s", p.name)
		}

		slog.Info("seeded promotion", slog.String("name", p.name))
	}

	return nil
}

const upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT (id) DO UPDATE SET
		key_hash = EXCLUDED.key_hash, name = EXCLUDED.name, scopes = EXCLUDED.scopes`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default admin key", []string{"admin"},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
