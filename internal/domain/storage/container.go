package storage

import (
	"context"
	"fmt"

	"ember/internal/domain/carts"
	"ember/internal/domain/catalog"
	"ember/internal/domain/checkouts"
	"ember/internal/domain/orders"
	"ember/internal/domain/users"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sales groups the repositories that participate in the purchase flow and
// therefore need a transactional counterpart (SalesTx).
type Sales struct {
	Carts     *carts.Repository
	Checkouts *checkouts.Repository
	Orders    *orders.Repository
}

type Container struct {
	pool         *pgxpool.Pool // IMPORTANT: set the pool so WithSalesTx works
	orderNumbers *orders.OrderNumberGenerator

	Catalog *catalog.Repository
	Users   *users.Repository
	Sales   Sales
}

func NewContainer(db *pgxpool.Pool, orderNumbers *orders.OrderNumberGenerator) *Container {
	return &Container{
		pool:         db,
		orderNumbers: orderNumbers,
		Catalog:      catalog.NewRepository(db),
		Users:        users.NewRepository(db),
		Sales: Sales{
			Carts:     carts.NewRepository(db),
			Checkouts: checkouts.NewRepository(db),
			Orders:    orders.NewRepository(db, orderNumbers),
		},
	}
}

// SalesTx is a temporary, tx-scoped set of repos for atomic units of work.
type SalesTx struct {
	Carts     *carts.Repository
	Checkouts *checkouts.Repository
	Orders    *orders.Repository
}

// WithSalesTx runs a sales unit-of-work atomically: every repo call inside
// fn shares one transaction, committed only when fn returns nil.
func (c *Container) WithSalesTx(ctx context.Context, fn func(s *SalesTx) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	s := &SalesTx{
		Carts:     carts.NewRepository(tx),
		Checkouts: checkouts.NewRepository(tx),
		Orders:    orders.NewRepository(tx, c.orderNumbers),
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
