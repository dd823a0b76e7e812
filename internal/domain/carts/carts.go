package carts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ember/internal/infra/dbx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidIdentity = errors.New("exactly one of user or guest identity required")
	ErrEmptyGuestCart  = errors.New("guest cart is empty")
	ErrNothingToMerge  = errors.New("no cart to merge")
)

type Repository struct {
	db         dbx.Querier
	newGuestID func() string
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q, newGuestID: uuid.NewString}
}

// NewRepositoryWithGuestIDs injects the guest identity generator, mainly so
// tests get deterministic tokens.
func NewRepositoryWithGuestIDs(q dbx.Querier, gen func() string) *Repository {
	return &Repository{db: q, newGuestID: gen}
}

// NewGuestID mints an opaque guest token for clients arriving without one.
func (r *Repository) NewGuestID() string {
	return r.newGuestID()
}

// Get returns the owner's cart or ErrCartNotFound.
func (r *Repository) Get(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.valid() {
		return nil, ErrInvalidIdentity
	}

	var (
		c        Cart
		itemsRaw []byte
	)

	err := r.db.QueryRow(ctx, `
SELECT id, user_id, guest_id, items, total_price, version, created_at, updated_at
FROM carts
WHERE (user_id = $1 AND $1 IS NOT NULL)
   OR (guest_id = $2 AND $2 IS NOT NULL)
`, owner.UserID, owner.GuestID).Scan(
		&c.ID,
		&c.UserID,
		&c.GuestID,
		&itemsRaw,
		&c.TotalPrice,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}

	return &c, nil
}

// AddItem folds the line into the owner's cart, creating the cart when it
// does not exist yet.
func (r *Repository) AddItem(ctx context.Context, owner Owner, item LineItem) (*Cart, error) {
	return r.mutate(ctx, owner, true, func(c *Cart) error {
		c.AddLine(item)
		return nil
	})
}

// UpdateQuantity sets the absolute quantity of the identified line; zero or
// less removes it.
func (r *Repository) UpdateQuantity(ctx context.Context, owner Owner, key LineKey, quantity int64) (*Cart, error) {
	return r.mutate(ctx, owner, false, func(c *Cart) error {
		return c.SetQuantity(key, quantity)
	})
}

// RemoveItem drops the identified line from the owner's cart.
func (r *Repository) RemoveItem(ctx context.Context, owner Owner, key LineKey) (*Cart, error) {
	return r.mutate(ctx, owner, false, func(c *Cart) error {
		return c.RemoveLine(key)
	})
}

// Clear empties the owner's cart document in place.
func (r *Repository) Clear(ctx context.Context, owner Owner) error {
	_, err := r.mutate(ctx, owner, false, func(c *Cart) error {
		c.Items = nil
		c.recompute()
		return nil
	})
	return err
}

// DeleteByUser removes the user's cart row entirely. Zero rows is fine: the
// caller treats deletion as best-effort cleanup after an order is placed.
func (r *Repository) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `
DELETE FROM carts
WHERE user_id = $1
`, userID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// Merge folds the guest cart into the user's cart and deletes the guest row.
// Run it on a transaction Querier: the deletion is what makes a replayed
// merge a no-op instead of a double-count.
//
// Cases, in order:
//   - no guest cart: return the user cart if one exists, else ErrNothingToMerge
//   - guest cart empty: ErrEmptyGuestCart
//   - no user cart: re-own the guest cart in place
//   - both: add quantities by line identity, delete the guest cart
//
// Losing a race to a concurrent writer (a committed re-own of the same guest
// token, or a cart edit bumping the version) re-runs the case analysis
// against the fresh rows rather than failing the merge.
func (r *Repository) Merge(ctx context.Context, guestID string, userID int64) (*Cart, error) {
	const maxAttempts = 3

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		guest, err := r.Get(ctx, GuestOwner(guestID))
		if err != nil && !errors.Is(err, ErrCartNotFound) {
			return nil, err
		}

		if guest == nil {
			user, uerr := r.Get(ctx, UserOwner(userID))
			if errors.Is(uerr, ErrCartNotFound) {
				return nil, ErrNothingToMerge
			}
			return user, uerr
		}

		if len(guest.Items) == 0 {
			return nil, ErrEmptyGuestCart
		}

		user, err := r.Get(ctx, UserOwner(userID))
		if err != nil && !errors.Is(err, ErrCartNotFound) {
			return nil, err
		}

		if user == nil {
			// Re-own the guest cart. The conditional write keeps a concurrent
			// merge of the same guest token from re-owning twice; losing it
			// means the guest row changed hands, so look again.
			tag, err := r.db.Exec(ctx, `
UPDATE carts
SET user_id = $1,
    guest_id = NULL,
    version = version + 1,
    updated_at = now()
WHERE guest_id = $2
`, userID, guestID)
			if err != nil {
				return nil, fmt.Errorf("reown guest cart: %w", err)
			}
			if tag.RowsAffected() == 0 {
				continue
			}
			return r.Get(ctx, UserOwner(userID))
		}

		user.MergeFrom(guest)

		err = r.save(ctx, user)
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if _, err := r.db.Exec(ctx, `
DELETE FROM carts
WHERE guest_id = $1
`, guestID); err != nil {
			return nil, fmt.Errorf("delete guest cart: %w", err)
		}

		return user, nil
	}

	return nil, fmt.Errorf("merge cart: gave up after %d conflicting writes", maxAttempts)
}

// mutate is the single read-modify-write path for cart documents: load (or
// create), apply, then save guarded by the loaded version. A lost race shows
// up as zero updated rows and we retry against the fresh document.
func (r *Repository) mutate(ctx context.Context, owner Owner, createMissing bool, apply func(*Cart) error) (*Cart, error) {
	if !owner.valid() {
		return nil, ErrInvalidIdentity
	}

	const maxAttempts = 3

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c, err := r.Get(ctx, owner)
		if errors.Is(err, ErrCartNotFound) {
			if !createMissing {
				return nil, err
			}
			c, err = r.create(ctx, owner)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					// Lost the creation race; the winner's row is there now.
					continue
				}
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}

		if err := apply(c); err != nil {
			return nil, err
		}

		err = r.save(ctx, c)
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return nil, fmt.Errorf("mutate cart: gave up after %d version conflicts", maxAttempts)
}

var errVersionConflict = errors.New("cart version conflict")

func (r *Repository) save(ctx context.Context, c *Cart) error {
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	itemsRaw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
UPDATE carts
SET items = $2,
    total_price = $3,
    version = version + 1,
    updated_at = now()
WHERE id = $1
  AND version = $4
`, c.ID, itemsRaw, c.TotalPrice, c.Version)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errVersionConflict
	}

	c.Version++
	return nil
}

func (r *Repository) create(ctx context.Context, owner Owner) (*Cart, error) {
	var c Cart

	err := r.db.QueryRow(ctx, `
INSERT INTO carts (user_id, guest_id)
VALUES ($1, $2)
RETURNING id, user_id, guest_id, total_price, version, created_at, updated_at
`, owner.UserID, owner.GuestID).Scan(
		&c.ID,
		&c.UserID,
		&c.GuestID,
		&c.TotalPrice,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	return &c, nil
}
