package checkouts

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

// fakeQuerier feeds scripted command tags to the repository in call order and
// records the SQL it saw. The paid/finalized transitions are Exec-only.
type fakeQuerier struct {
	t *testing.T

	tags  []pgconn.CommandTag
	execs []string
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
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
	q.t.Fatalf("unexpected QueryRow: %s", sql)
	return nil
}

func updated(n string) pgconn.CommandTag { return pgconn.NewCommandTag("UPDATE " + n) }

// --- Tests ---

func TestMarkPaidByHandle(t *testing.T) {
	t.Run("first delivery applies", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("1")}}
		r := NewRepository(q)

		applied, err := r.MarkPaidByHandle(context.Background(), "cs_test_1", []byte(`{}`))
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("replay updates nothing and keeps paid_at", func(t *testing.T) {
		// The second delivery matches zero rows: the guard leaves the stored
		// paid_at and confirmation from the first delivery untouched.
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("0")}}
		r := NewRepository(q)

		applied, err := r.MarkPaidByHandle(context.Background(), "cs_test_1", []byte(`{}`))
		require.NoError(t, err)
		assert.False(t, applied)
		require.Len(t, q.execs, 1)
		assert.Contains(t, q.execs[0], "paid = false")
	})
}

func TestMarkPaid(t *testing.T) {
	t.Run("losing the race with the webhook is not an error", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("0")}}
		r := NewRepository(q)

		applied, err := r.MarkPaid(context.Background(), 42, []byte(`{}`))
		require.NoError(t, err)
		assert.False(t, applied)
		require.Len(t, q.execs, 1)
		assert.Contains(t, q.execs[0], "paid = false")
	})
}

func TestMarkFinalized(t *testing.T) {
	t.Run("claims the checkout once", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("1")}}
		r := NewRepository(q)

		require.NoError(t, r.MarkFinalized(context.Background(), 42))
		require.Len(t, q.execs, 1)
		assert.Contains(t, q.execs[0], "finalized = false")
	})

	t.Run("second finalize reports AlreadyFinalized", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("0")}}
		r := NewRepository(q)

		require.ErrorIs(t, r.MarkFinalized(context.Background(), 42), ErrAlreadyFinalized)
	})
}

func TestSetSessionHandle(t *testing.T) {
	t.Run("refused once the checkout is paid or finalized", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{updated("0")}}
		r := NewRepository(q)

		require.ErrorIs(t, r.SetSessionHandle(context.Background(), 42, "cs_test_2"), ErrAlreadyPaid)
		require.Len(t, q.execs, 1)
		assert.Contains(t, q.execs[0], "paid = false")
	})
}
