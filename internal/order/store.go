package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bundlemart/internal/common/database"
)

// Store provides order data access.
type Store struct {
	db *database.DB
}

// NewStore creates an order store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, store_id, product_id, buyer_phone, selling_price, base_price, profit,
	order_status, payment_status, payment_reference,
	created_at, updated_at, delivered_at
`

// Create inserts a pending order.
func (s *Store) Create(ctx context.Context, o *Order) error {
	query := `
		INSERT INTO orders (
			id, store_id, product_id, buyer_phone, selling_price, base_price, profit,
			order_status, payment_status, payment_reference,
			created_at, updated_at, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.Exec(ctx, query,
		o.ID, o.StoreID, o.ProductID, o.BuyerPhone, o.SellingPrice, o.BasePrice, o.Profit,
		o.OrderStatus, o.PaymentStatus, o.PaymentReference,
		o.CreatedAt, o.UpdatedAt, o.DeliveredAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("order payment reference %s: %w", o.PaymentReference, database.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// Get retrieves an order by ID.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(s.db.QueryRow(ctx, query, id))
}

// GetByReference retrieves an order by its payment reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`
	return scanOrder(s.db.QueryRow(ctx, query, reference))
}

// ListByStore lists a store's orders, newest first.
func (s *Store) ListByStore(ctx context.Context, storeID string, limit, offset int) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE store_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, storeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// MarkPaidTx moves an order's payment to completed and its fulfillment to
// processing, inside the reconciliation transaction. Replays are no-ops:
// the conditional update only fires on a still-pending payment.
func (s *Store) MarkPaidTx(ctx context.Context, tx pgx.Tx, reference string) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'completed', order_status = 'processing', updated_at = now()
		WHERE payment_reference = $1 AND payment_status = 'pending'
	`, reference)
	if err != nil {
		return fmt.Errorf("marking order paid: %w", err)
	}
	return nil
}

// MarkPaymentFailedTx records a failed payment leg.
func (s *Store) MarkPaymentFailedTx(ctx context.Context, tx pgx.Tx, reference string) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = 'failed', order_status = 'failed', updated_at = now()
		WHERE payment_reference = $1 AND payment_status = 'pending'
	`, reference)
	if err != nil {
		return fmt.Errorf("marking order payment failed: %w", err)
	}
	return nil
}

// MarkDelivered records successful bundle delivery. Redelivery reports of
// an already-delivered order are ignored.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders
		SET order_status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE id = $1 AND order_status <> 'delivered'
	`, id)
	if err != nil {
		return fmt.Errorf("marking order delivered: %w", err)
	}
	return nil
}

// MarkFulfillmentFailed records a delivery failure so operators can
// intervene. A delivered order is never demoted.
func (s *Store) MarkFulfillmentFailed(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders
		SET order_status = 'failed', updated_at = now()
		WHERE id = $1 AND order_status NOT IN ('delivered', 'refunded')
	`, id)
	if err != nil {
		return fmt.Errorf("marking order fulfillment failed: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.StoreID, &o.ProductID, &o.BuyerPhone, &o.SellingPrice, &o.BasePrice, &o.Profit,
		&o.OrderStatus, &o.PaymentStatus, &o.PaymentReference,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return &o, nil
}

func scanOrderRows(rows pgx.Rows) (*Order, error) {
	var o Order
	err := rows.Scan(
		&o.ID, &o.StoreID, &o.ProductID, &o.BuyerPhone, &o.SellingPrice, &o.BasePrice, &o.Profit,
		&o.OrderStatus, &o.PaymentStatus, &o.PaymentReference,
		&o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return &o, nil
}
