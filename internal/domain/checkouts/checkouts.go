package checkouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ember/internal/domain/carts"
	"ember/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

type CreateInput struct {
	UserID        int64
	Items         []carts.LineItem
	Shipping      Shipping
	PaymentMethod string
	TotalPrice    decimal.Decimal
}

// Create snapshots the cart into a new pending checkout. The snapshot is
// immutable from here on; later cart edits never touch it.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*CheckoutSession, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCheckout
	}

	itemsRaw, err := json.Marshal(in.Items)
	if err != nil {
		return nil, fmt.Errorf("encode checkout items: %w", err)
	}
	shippingRaw, err := json.Marshal(in.Shipping)
	if err != nil {
		return nil, fmt.Errorf("encode shipping: %w", err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, `
INSERT INTO checkout_sessions (user_id, items, shipping, payment_method, total_price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, in.UserID, itemsRaw, shippingRaw, in.PaymentMethod, in.TotalPrice).Scan(&id); err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	return r.GetByID(ctx, id)
}

func (r *Repository) GetByID(ctx context.Context, checkoutID int64) (*CheckoutSession, error) {
	return r.getWhere(ctx, "id = $1", checkoutID)
}

// GetByHandle resolves a checkout by its provider session handle, the join
// key webhook deliveries and session lookups arrive with.
func (r *Repository) GetByHandle(ctx context.Context, handle string) (*CheckoutSession, error) {
	return r.getWhere(ctx, "session_handle = $1", handle)
}

func (r *Repository) getWhere(ctx context.Context, where string, arg any) (*CheckoutSession, error) {
	var (
		cs          CheckoutSession
		itemsRaw    []byte
		shippingRaw []byte
	)

	err := r.db.QueryRow(ctx, `
SELECT id, user_id, items, shipping, payment_method, total_price, payment_status,
       session_handle, paid, paid_at, finalized, finalized_at, confirmation,
       created_at, updated_at
FROM checkout_sessions
WHERE `+where, arg).Scan(
		&cs.ID,
		&cs.UserID,
		&itemsRaw,
		&shippingRaw,
		&cs.PaymentMethod,
		&cs.TotalPrice,
		&cs.PaymentStatus,
		&cs.SessionHandle,
		&cs.Paid,
		&cs.PaidAt,
		&cs.Finalized,
		&cs.FinalizedAt,
		&cs.Confirmation,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCheckoutNotFound
		}
		return nil, fmt.Errorf("get checkout: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &cs.Items); err != nil {
		return nil, fmt.Errorf("decode checkout items: %w", err)
	}
	if err := json.Unmarshal(shippingRaw, &cs.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}

	return &cs, nil
}

// SetSessionHandle stores the provider handle for the checkout. Reissue
// overwrites: the stored handle must always be the one confirmations will
// arrive under. Refuses once the checkout is paid or finalized.
func (r *Repository) SetSessionHandle(ctx context.Context, checkoutID int64, handle string) error {
	tag, err := r.db.Exec(ctx, `
UPDATE checkout_sessions
SET session_handle = $2,
    updated_at = now()
WHERE id = $1
  AND paid = false
  AND finalized = false
`, checkoutID, handle)
	if err != nil {
		return fmt.Errorf("set session handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

// MarkPaidByHandle flips the checkout identified by the provider handle to
// paid, storing the raw confirmation. One conditional statement is the whole
// transition: a replayed event or an unknown handle updates zero rows and
// returns false, never an error.
func (r *Repository) MarkPaidByHandle(ctx context.Context, handle string, confirmation []byte) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE checkout_sessions
SET paid = true,
    paid_at = now(),
    payment_status = 'paid',
    confirmation = $2,
    updated_at = now()
WHERE session_handle = $1
  AND paid = false
`, handle, confirmation)
	if err != nil {
		return false, fmt.Errorf("mark paid by handle: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaid is the same transition keyed by checkout ID, used when the
// finalize path polls the gateway itself. Both paths race safely: whichever
// runs second updates zero rows.
func (r *Repository) MarkPaid(ctx context.Context, checkoutID int64, confirmation []byte) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE checkout_sessions
SET paid = true,
    paid_at = now(),
    payment_status = 'paid',
    confirmation = $2,
    updated_at = now()
WHERE id = $1
  AND paid = false
`, checkoutID, confirmation)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFinalized claims the checkout for order materialization. Run inside
// the same transaction as the order insert; zero rows means another finalize
// already won.
func (r *Repository) MarkFinalized(ctx context.Context, checkoutID int64) error {
	tag, err := r.db.Exec(ctx, `
UPDATE checkout_sessions
SET finalized = true,
    finalized_at = now(),
    updated_at = now()
WHERE id = $1
  AND paid = true
  AND finalized = false
`, checkoutID)
	if err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}
