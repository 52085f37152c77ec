package filestore

import "context"

// StaticCatalog is a fixed product list, used with the file backend.
type StaticCatalog struct {
	ids map[string]struct{}
}

func NewStaticCatalog(productIDs []string) *StaticCatalog {
	ids := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		ids[id] = struct{}{}
	}
	return &StaticCatalog{ids: ids}
}

func (c *StaticCatalog) Exists(_ context.Context, productID string) (bool, error) {
	_, ok := c.ids[productID]
	return ok, nil
}

func (c *StaticCatalog) Len() int {
	return len(c.ids)
}
