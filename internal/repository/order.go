package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkart/commerce/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, customer_id, status, payment_status, subtotal, tax, shipping_cost, discount, total, coupon_code, discounts, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, quantity, price, line_total, tax_amount, discount_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT id, COALESCE(customer_id, ''), status, payment_status,
		subtotal, tax, shipping_cost, discount, total, coupon_code, discounts, created_at
		FROM orders WHERE id = $1`

	listOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price, line_total, tax_amount, discount_amount
		FROM order_items WHERE order_id = $1 ORDER BY id`

	listShipmentsSQL = `SELECT id, order_id, status, carrier, tracking_no, created_at
		FROM shipments WHERE order_id = $1 ORDER BY created_at, id`

	listShipmentItemsSQL = `SELECT si.id, si.shipment_id, si.order_item_id, si.quantity
		FROM shipment_items si
		JOIN shipments s ON s.id = si.shipment_id
		WHERE s.order_id = $1`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2 WHERE id = $1`

	insertShipmentSQL = `INSERT INTO shipments (id, order_id, status, carrier, tracking_no, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertShipmentItemSQL = `INSERT INTO shipment_items (id, shipment_id, order_item_id, quantity)
		VALUES ($1, $2, $3, $4)`

	insertCreditMemoSQL = `INSERT INTO credit_memos (id, order_id, status, refund_amount, restore_inventory, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertCreditMemoItemSQL = `INSERT INTO credit_memo_items (id, credit_memo_id, order_item_id, qty_refunded)
		VALUES ($1, $2, $3, $4)`

	getCreditMemoSQL = `SELECT id, order_id, status, refund_amount, restore_inventory, created_at
		FROM credit_memos WHERE id = $1`

	listCreditMemoItemsSQL = `SELECT id, order_item_id, qty_refunded
		FROM credit_memo_items WHERE credit_memo_id = $1 ORDER BY id`

	updateCreditMemoStatusSQL = `UPDATE credit_memos SET status = $2
		WHERE id = $1 AND status = 'pending'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := insertOrderTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertOrderTx writes the order row and its items inside tx. Shared with the
// placement transaction.
func insertOrderTx(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	discountsJSON, err := json.Marshal(o.Discounts)
	if err != nil {
		return fmt.Errorf("marshaling order discounts: %w", err)
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.CustomerID, o.Status, o.PaymentStatus,
		o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.Total,
		o.CouponCode, discountsJSON, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			it.ID, it.OrderID, it.ProductID, it.Quantity,
			it.Price, it.LineTotal, it.TaxAmount, it.DiscountAmount,
		)
		if err != nil {
			return fmt.Errorf("creating order item %s: %w", it.ID, err)
		}
	}
	return nil
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var (
		o             order.Order
		discountsJSON []byte
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.Total,
		&o.CouponCode, &discountsJSON, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	if err := json.Unmarshal(discountsJSON, &o.Discounts); err != nil {
		return nil, fmt.Errorf("order %s: decoding discounts: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %s: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity,
			&it.Price, &it.LineTotal, &it.TaxAmount, &it.DiscountAmount)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items for order %s: %w", id, err)
	}

	return &o, nil
}

// UpdatePaymentStatus sets the payment status of an existing order.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status order.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating payment status for order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// ListShipments returns all shipments for an order, with their items.
func (r *OrderRepository) ListShipments(ctx context.Context, orderID uuid.UUID) ([]order.Shipment, error) {
	rows, err := r.pool.Query(ctx, listShipmentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing shipments for order %s: %w", orderID, err)
	}
	shipments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Shipment, error) {
		var s order.Shipment
		err := row.Scan(&s.ID, &s.OrderID, &s.Status, &s.Carrier, &s.TrackingNo, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing shipments for order %s: %w", orderID, err)
	}

	itemRows, err := r.pool.Query(ctx, listShipmentItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing shipment items for order %s: %w", orderID, err)
	}

	type shipmentItemRow struct {
		item       order.ShipmentItem
		shipmentID uuid.UUID
	}
	itemsByShipment := make(map[uuid.UUID][]order.ShipmentItem)
	_, err = pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (shipmentItemRow, error) {
		var sir shipmentItemRow
		err := row.Scan(&sir.item.ID, &sir.shipmentID, &sir.item.OrderItemID, &sir.item.Quantity)
		if err == nil {
			itemsByShipment[sir.shipmentID] = append(itemsByShipment[sir.shipmentID], sir.item)
		}
		return sir, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing shipment items for order %s: %w", orderID, err)
	}

	for i := range shipments {
		shipments[i].Items = itemsByShipment[shipments[i].ID]
	}
	return shipments, nil
}

// CreateShipment persists a shipment and its items in one transaction.
func (r *OrderRepository) CreateShipment(ctx context.Context, s *order.Shipment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertShipmentSQL,
		s.ID, s.OrderID, s.Status, s.Carrier, s.TrackingNo, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating shipment %s: %w", s.ID, err)
	}

	for _, si := range s.Items {
		_, err = tx.Exec(ctx, insertShipmentItemSQL, si.ID, s.ID, si.OrderItemID, si.Quantity)
		if err != nil {
			return fmt.Errorf("creating shipment item %s: %w", si.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// CreateCreditMemo persists a credit memo and its items in one transaction.
func (r *OrderRepository) CreateCreditMemo(ctx context.Context, m *order.CreditMemo) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, insertCreditMemoSQL,
		m.ID, m.OrderID, m.Status, m.RefundAmount, m.RestoreInventory, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating credit memo %s: %w", m.ID, err)
	}

	for _, it := range m.Items {
		_, err = tx.Exec(ctx, insertCreditMemoItemSQL, it.ID, m.ID, it.OrderItemID, it.QtyRefunded)
		if err != nil {
			return fmt.Errorf("creating credit memo item %s: %w", it.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetCreditMemo returns a credit memo with its items.
func (r *OrderRepository) GetCreditMemo(ctx context.Context, id uuid.UUID) (*order.CreditMemo, error) {
	var m order.CreditMemo
	err := r.pool.QueryRow(ctx, getCreditMemoSQL, id).Scan(
		&m.ID, &m.OrderID, &m.Status, &m.RefundAmount, &m.RestoreInventory, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting credit memo %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, listCreditMemoItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items for credit memo %s: %w", id, err)
	}
	m.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.CreditMemoItem, error) {
		var it order.CreditMemoItem
		err := row.Scan(&it.ID, &it.OrderItemID, &it.QtyRefunded)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items for credit memo %s: %w", id, err)
	}

	return &m, nil
}

// UpdateCreditMemoStatus moves a memo out of pending. The pending guard in
// the statement makes complete/cancel a one-shot even under concurrent admins.
func (r *OrderRepository) UpdateCreditMemoStatus(ctx context.Context, id uuid.UUID, status order.CreditMemoStatus) error {
	tag, err := r.pool.Exec(ctx, updateCreditMemoStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating credit memo %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(order.ErrInvalidTransition, "credit memo %s", id)
	}
	return nil
}
