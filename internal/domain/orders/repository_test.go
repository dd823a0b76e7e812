package orders

import (
	"context"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type fakeRow struct {
	err  error
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

type fakeQuerier struct {
	t *testing.T

	rows []fakeRow
	tags []pgconn.CommandTag
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
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
	require.NotEmpty(q.t, q.rows, "unexpected QueryRow: %s", sql)
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

func updated(n string) pgconn.CommandTag { return pgconn.NewCommandTag("UPDATE " + n) }

func testRepo(t *testing.T, q *fakeQuerier) *Repository {
	t.Helper()
	gen, err := NewOrderNumberGenerator("test-salt")
	require.NoError(t, err)
	return NewRepository(q, gen)
}

// --- Tests ---

func TestCancel(t *testing.T) {
	const userID = int64(7)

	t.Run("cancels a processing order", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("1")}}
		r := testRepo(t, q)

		require.NoError(t, r.Cancel(context.Background(), userID, 42))
	})

	t.Run("unknown order", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			tags: []pgconn.CommandTag{updated("0")},
			rows: []fakeRow{{err: pgx.ErrNoRows}},
		}
		r := testRepo(t, q)

		require.ErrorIs(t, r.Cancel(context.Background(), userID, 42), ErrOrderNotFound)
	})

	t.Run("someone else's order", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			tags: []pgconn.CommandTag{updated("0")},
			rows: []fakeRow{{vals: []any{int64(99), StatusProcessing}}},
		}
		r := testRepo(t, q)

		require.ErrorIs(t, r.Cancel(context.Background(), userID, 42), ErrNotAuthorized)
	})

	t.Run("delivered order stays delivered", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			tags: []pgconn.CommandTag{updated("0")},
			rows: []fakeRow{{vals: []any{userID, StatusDelivered}}},
		}
		r := testRepo(t, q)

		require.ErrorIs(t, r.Cancel(context.Background(), userID, 42), ErrTerminalState)
	})

	t.Run("already cancelled order", func(t *testing.T) {
		q := &fakeQuerier{t: t,
			tags: []pgconn.CommandTag{updated("0")},
			rows: []fakeRow{{vals: []any{userID, StatusCancelled}}},
		}
		r := testRepo(t, q)

		require.ErrorIs(t, r.Cancel(context.Background(), userID, 42), ErrTerminalState)
	})
}
