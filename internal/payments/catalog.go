package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bundlemart/internal/common/database"
)

// PostgresCatalog reads product prices from the catalog table. Catalog
// management lives in another service; this is a read-only view.
type PostgresCatalog struct {
	db *database.DB
}

// NewPostgresCatalog creates the catalog view.
func NewPostgresCatalog(db *database.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

// Product resolves one catalog entry.
func (c *PostgresCatalog) Product(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := c.db.QueryRow(ctx, `
		SELECT id, store_id, name, selling_price, base_price, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.StoreID, &p.Name, &p.SellingPriceMinor, &p.BasePriceMinor, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("looking up product: %w", err)
	}
	return &p, nil
}

var _ Catalog = (*PostgresCatalog)(nil)
