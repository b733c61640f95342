package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/commerce/internal/domain/customer"
	"github.com/openkart/commerce/internal/domain/order"
)

// getCustomerProfileSQL counts completed orders inline so the validator's
// first-order check needs a single round trip.
const getCustomerProfileSQL = `SELECT c.id, c.customer_group, c.created_at,
	(SELECT COUNT(*) FROM orders o WHERE o.customer_id = c.id AND o.status = $2)
	FROM customers c WHERE c.id = $1`

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetProfile returns the customer's group, account age, and completed-order
// count. Returns customer.ErrNotFound for unknown IDs.
func (r *CustomerRepository) GetProfile(ctx context.Context, id string) (*customer.Profile, error) {
	var p customer.Profile
	err := r.pool.QueryRow(ctx, getCustomerProfileSQL, id, order.StatusCompleted).Scan(
		&p.ID, &p.Group, &p.CreatedAt, &p.CompletedOrders,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &p, nil
}
