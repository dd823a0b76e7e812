package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ember/internal/domain/checkouts"
	"ember/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	q   dbx.Querier
	gen *OrderNumberGenerator
}

func NewRepository(q dbx.Querier, gen *OrderNumberGenerator) *Repository {
	if gen == nil {
		panic("orders: OrderNumberGenerator is nil")
	}
	return &Repository{q: q, gen: gen}
}

// CreateFromCheckout materializes an order from a paid checkout, copying its
// snapshot verbatim. Call it inside the same transaction that marks the
// checkout finalized: the UNIQUE constraint on checkout_id is the backstop
// should both ever run for the same checkout.
func (r *Repository) CreateFromCheckout(ctx context.Context, cs *checkouts.CheckoutSession) (*Order, error) {
	itemsRaw, err := json.Marshal(cs.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	shippingRaw, err := json.Marshal(cs.Shipping)
	if err != nil {
		return nil, fmt.Errorf("encode order shipping: %w", err)
	}

	o := &Order{
		OrderNumber:   r.gen.Generate(cs.UserID),
		UserID:        cs.UserID,
		CheckoutID:    cs.ID,
		Items:         cs.Items,
		Shipping:      cs.Shipping,
		PaymentMethod: cs.PaymentMethod,
		TotalPrice:    cs.TotalPrice,
		Paid:          cs.Paid,
		PaidAt:        cs.PaidAt,
		Status:        StatusProcessing,
	}

	if err := r.q.QueryRow(ctx, `
INSERT INTO orders (
  order_number, user_id, checkout_id, items, shipping,
  payment_method, total_price, paid, paid_at, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at
`,
		o.OrderNumber, o.UserID, o.CheckoutID, itemsRaw, shippingRaw,
		o.PaymentMethod, o.TotalPrice, o.Paid, o.PaidAt, o.Status,
	).Scan(&o.ID, &o.CreatedAt); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return o, nil
}

// ListByUser returns the user's orders newest first with the total count for
// pagination.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT id, order_number, user_id, checkout_id, items, shipping, payment_method,
       total_price, paid, paid_at, status, is_delivered, delivered_at,
       cancelled_at, created_at,
       COUNT(*) OVER() AS total_count
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		out   []Order
		total int
	)

	for rows.Next() {
		var (
			o Order
			t int
		)
		if err := scanOrder(rows, &o, &t); err != nil {
			return nil, 0, err
		}
		if total == 0 {
			total = t
		}
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

// GetDetailForUser returns the order only when it belongs to the user;
// anyone else sees ErrOrderNotFound, not a permission error.
func (r *Repository) GetDetailForUser(ctx context.Context, userID, orderID int64) (*Order, error) {
	var (
		o           Order
		itemsRaw    []byte
		shippingRaw []byte
	)

	err := r.q.QueryRow(ctx, `
SELECT id, order_number, user_id, checkout_id, items, shipping, payment_method,
       total_price, paid, paid_at, status, is_delivered, delivered_at,
       cancelled_at, created_at
FROM orders
WHERE id = $1
  AND user_id = $2
`, orderID, userID).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.CheckoutID, &itemsRaw, &shippingRaw,
		&o.PaymentMethod, &o.TotalPrice, &o.Paid, &o.PaidAt, &o.Status,
		&o.IsDelivered, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(shippingRaw, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode order shipping: %w", err)
	}

	return &o, nil
}

// Cancel moves the user's order to cancelled unless it is already delivered
// or cancelled. The status guard lives in the UPDATE itself; a lost race
// with delivery resolves to ErrTerminalState. Cancelling someone else's
// order is ErrNotAuthorized, not a not-found.
func (r *Repository) Cancel(ctx context.Context, userID, orderID int64) error {
	tag, err := r.q.Exec(ctx, `
UPDATE orders
SET status = $3,
    cancelled_at = now()
WHERE id = $1
  AND user_id = $2
  AND is_delivered = false
  AND status NOT IN ($3, $4)
`, orderID, userID, StatusCancelled, StatusDelivered)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: missing, someone else's, or terminal. Look to tell apart.
	var (
		ownerID int64
		status  string
	)
	err = r.q.QueryRow(ctx, `
SELECT user_id, status
FROM orders
WHERE id = $1
`, orderID).Scan(&ownerID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("cancel order lookup: %w", err)
	}
	if ownerID != userID {
		return ErrNotAuthorized
	}

	return ErrTerminalState
}

// MarkDelivered is fulfillment's hook; terminal orders are left alone.
func (r *Repository) MarkDelivered(ctx context.Context, orderID int64) error {
	tag, err := r.q.Exec(ctx, `
UPDATE orders
SET status = $2,
    is_delivered = true,
    delivered_at = now()
WHERE id = $1
  AND status NOT IN ($2, $3)
`, orderID, StatusDelivered, StatusCancelled)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminalState
	}
	return nil
}

func scanOrder(rows pgx.Rows, o *Order, total *int) error {
	var itemsRaw, shippingRaw []byte

	if err := rows.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.CheckoutID, &itemsRaw, &shippingRaw,
		&o.PaymentMethod, &o.TotalPrice, &o.Paid, &o.PaidAt, &o.Status,
		&o.IsDelivered, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt,
		total,
	); err != nil {
		return fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return fmt.Errorf("decode order items: %w", err)
	}
	if err := json.Unmarshal(shippingRaw, &o.Shipping); err != nil {
		return fmt.Errorf("decode order shipping: %w", err)
	}

	return nil
}
