package domain

import "context"

// ProductCatalog answers whether a product exists. Catalog management lives elsewhere.
type ProductCatalog interface {
	Exists(ctx context.Context, productID string) (bool, error)
}
