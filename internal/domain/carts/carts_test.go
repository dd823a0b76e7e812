package carts

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// fakeRow scripts one QueryRow result: either an error or the column values
// assigned into the scan targets in order.
type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		out := reflect.ValueOf(dest[i]).Elem()
		if r.vals[i] == nil {
			out.Set(reflect.Zero(out.Type()))
			continue
		}
		out.Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// fakeQuerier feeds scripted rows and command tags to the repository in call
// order and records the SQL it saw.
type fakeQuerier struct {
	t *testing.T

	rows []fakeRow
	tags []pgconn.CommandTag

	queries  []string
	execs    []string
	execArgs [][]any
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	q.execArgs = append(q.execArgs, args)
	require.NotEmpty(q.t, q.tags, "unexpected Exec: %s", sql)
	tag := q.tags[0]
	q.tags = q.tags[1:]
	return tag, nil
}

func (q *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.t.Fatalf("unexpected Query: %s", sql)
	return nil, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.queries = append(q.queries, sql)
	require.NotEmpty(q.t, q.rows, "unexpected QueryRow: %s", sql)
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

// --- Helpers ---

func noRow() fakeRow { return fakeRow{err: pgx.ErrNoRows} }

func cartRow(t *testing.T, id int64, userID *int64, guestID *string, version int64, items ...LineItem) fakeRow {
	t.Helper()
	if items == nil {
		items = []LineItem{}
	}
	raw, err := json.Marshal(items)
	require.NoError(t, err)

	var probe Cart
	probe.Items = items
	probe.recompute()

	now := time.Now()
	return fakeRow{vals: []any{
		id, userID, guestID, raw, probe.TotalPrice, version, now, now,
	}}
}

func updated(n string) pgconn.CommandTag { return pgconn.NewCommandTag("UPDATE " + n) }
func deleted(n string) pgconn.CommandTag { return pgconn.NewCommandTag("DELETE " + n) }

func userPtr(id int64) *int64    { return &id }
func guestPtr(id string) *string { return &id }
func ctx() context.Context       { return context.Background() }

// --- Tests ---

func TestMerge(t *testing.T) {
	const (
		userID  = int64(7)
		guestID = "g-123"
	)

	t.Run("no cart on either side", func(t *testing.T) {
		q := &fakeQuerier{t: t, rows: []fakeRow{noRow(), noRow()}}
		r := NewRepository(q)

		_, err := r.Merge(ctx(), guestID, userID)
		require.ErrorIs(t, err, ErrNothingToMerge)
	})

	t.Run("replay with the guest cart gone returns the user cart unchanged", func(t *testing.T) {
		q := &fakeQuerier{t: t, rows: []fakeRow{
			noRow(),
			cartRow(t, 1, userPtr(userID), nil, 3, amberGlow(false, 2)),
		}}
		r := NewRepository(q)

		cart, err := r.Merge(ctx(), guestID, userID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(2), cart.Items[0].Quantity)
		assert.Empty(t, q.execs, "a replayed merge must not write")
	})

	t.Run("empty guest cart", func(t *testing.T) {
		q := &fakeQuerier{t: t, rows: []fakeRow{
			cartRow(t, 2, nil, guestPtr(guestID), 1),
		}}
		r := NewRepository(q)

		_, err := r.Merge(ctx(), guestID, userID)
		require.ErrorIs(t, err, ErrEmptyGuestCart)
	})

	t.Run("re-owns the guest cart when the user has none", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			rows: []fakeRow{
				cartRow(t, 2, nil, guestPtr(guestID), 1, amberGlow(false, 2)),
				noRow(),
				cartRow(t, 2, userPtr(userID), nil, 2, amberGlow(false, 2)),
			},
			tags: []pgconn.CommandTag{updated("1")},
		}
		r := NewRepository(q)

		cart, err := r.Merge(ctx(), guestID, userID)
		require.NoError(t, err)
		require.NotNil(t, cart.UserID)
		assert.Equal(t, userID, *cart.UserID)
		require.Len(t, q.execs, 1)
		assert.Contains(t, q.execs[0], "SET user_id")
		assert.Equal(t, userID, q.execArgs[0][0])
	})

	t.Run("folds both carts and deletes the guest row", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			rows: []fakeRow{
				cartRow(t, 2, nil, guestPtr(guestID), 1, amberGlow(false, 2), amberGlow(true, 1)),
				cartRow(t, 1, userPtr(userID), nil, 4, amberGlow(false, 1)),
			},
			tags: []pgconn.CommandTag{updated("1"), deleted("1")},
		}
		r := NewRepository(q)

		cart, err := r.Merge(ctx(), guestID, userID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 2)
		assert.Equal(t, int64(3), cart.Items[0].Quantity)
		assert.True(t, cart.TotalPrice.Equal(d("83.95")))
		require.Len(t, q.execs, 2)
		assert.Contains(t, q.execs[1], "DELETE FROM carts")
	})

	t.Run("losing the re-own race falls back to the now-owned cart", func(t *testing.T) {
		// A concurrent merge of the same guest token commits its re-own
		// between our read and our write: zero rows, then the guest row is
		// gone and the user cart exists.
		q := &fakeQuerier{t: t,
			rows: []fakeRow{
				cartRow(t, 2, nil, guestPtr(guestID), 1, amberGlow(false, 2)),
				noRow(),
				noRow(),
				cartRow(t, 2, userPtr(userID), nil, 2, amberGlow(false, 2)),
			},
			tags: []pgconn.CommandTag{updated("0")},
		}
		r := NewRepository(q)

		cart, err := r.Merge(ctx(), guestID, userID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(2), cart.Items[0].Quantity)
	})

	t.Run("version conflict re-reads instead of failing", func(t *testing.T) {
		// The user edits their cart while the merge is in flight. The first
		// save loses the version check; the retry folds against the fresh
		// document, so nothing is counted twice.
		q := &fakeQuerier{t: t,
			rows: []fakeRow{
				cartRow(t, 2, nil, guestPtr(guestID), 1, amberGlow(false, 2)),
				cartRow(t, 1, userPtr(userID), nil, 4, amberGlow(false, 1)),
				cartRow(t, 2, nil, guestPtr(guestID), 1, amberGlow(false, 2)),
				cartRow(t, 1, userPtr(userID), nil, 5, amberGlow(false, 1)),
			},
			tags: []pgconn.CommandTag{updated("0"), updated("1"), deleted("1")},
		}
		r := NewRepository(q)

		cart, err := r.Merge(ctx(), guestID, userID)
		require.NoError(t, err)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, int64(3), cart.Items[0].Quantity)
	})
}

func TestUpdateQuantityRepo(t *testing.T) {
	const userID = int64(7)

	t.Run("quantity at or below zero removes the line", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			rows: []fakeRow{
				cartRow(t, 1, userPtr(userID), nil, 2, amberGlow(false, 3)),
			},
			tags: []pgconn.CommandTag{updated("1")},
		}
		r := NewRepository(q)

		cart, err := r.UpdateQuantity(ctx(), UserOwner(userID), amberGlow(false, 0).Key(), -1)
		require.NoError(t, err)
		assert.Empty(t, cart.Items)
		assert.True(t, cart.TotalPrice.IsZero())
	})

	t.Run("missing cart is not created", func(t *testing.T) {
		q := &fakeQuerier{t: t, rows: []fakeRow{noRow()}}
		r := NewRepository(q)

		_, err := r.UpdateQuantity(ctx(), UserOwner(userID), amberGlow(false, 0).Key(), 2)
		require.ErrorIs(t, err, ErrCartNotFound)
		assert.Empty(t, q.execs)
	})
}
