package users

import (
	"context"
	"errors"
	"fmt"

	"ember/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

// GetByID resolves a token subject to an account, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, userID int64) (*User, error) {
	var u User

	err := r.db.QueryRow(ctx, `
SELECT id, email, username, created_at
FROM users
WHERE id = $1
`, userID).Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}
