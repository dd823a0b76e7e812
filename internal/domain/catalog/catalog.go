package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ember/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the read model the cart consults when a line is added. Catalog
// management itself lives elsewhere; this repo only ever reads.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	SKU         string          `json:"sku"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	ImageURL    *string         `json:"image_url"`
	IsPublished bool            `json:"is_published"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

// GetProduct returns a published product or ErrProductNotFound. Unpublished
// products are invisible to the storefront, same as missing ones.
func (r *Repository) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	var p Product

	err := r.db.QueryRow(ctx, `
SELECT id, name, COALESCE(description, ''), price, sku, sizes, colors, image_url, is_published, created_at
FROM products
WHERE id = $1
  AND is_published = true
`, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.SKU,
		&p.Sizes,
		&p.Colors,
		&p.ImageURL,
		&p.IsPublished,
		&p.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}
