package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog answers product existence from the products table.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) Exists(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product existence: %w", err)
	}
	return exists, nil
}

// Ensure inserts any of productIDs that are missing. It is used to seed the catalog
// from configuration and never removes products.
func (c *Catalog) Ensure(ctx context.Context, productIDs []string) (int, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, id := range productIDs {
		batch.Queue(`INSERT INTO products (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	}

	results := c.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for range productIDs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to seed product: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
