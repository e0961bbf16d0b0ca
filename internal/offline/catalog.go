package offline

import (
	"context"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/localstore"
)

// CatalogSnapshot is the last product listing seen online. It prices
// checkouts taken while the remote store is unreachable and is the first
// thing evicted when local storage fills up.
type CatalogSnapshot struct {
	kv localstore.KV
}

func NewCatalogSnapshot(kv localstore.KV) *CatalogSnapshot {
	return &CatalogSnapshot{kv: kv}
}

func (c *CatalogSnapshot) Save(ctx context.Context, tenant string, products []domain.Product) error {
	return persistJSON(ctx, c.kv, CatalogKey(tenant), products, nil)
}

func (c *CatalogSnapshot) Load(ctx context.Context, tenant string) ([]domain.Product, bool, error) {
	var products []domain.Product
	found, err := loadJSON(ctx, c.kv, CatalogKey(tenant), &products)
	return products, found, err
}

func (c *CatalogSnapshot) Lookup(ctx context.Context, tenant, productID string) (*domain.Product, bool) {
	products, _, err := c.Load(ctx, tenant)
	if err != nil {
		return nil, false
	}
	for _, p := range products {
		if p.ID == productID {
			cp := p
			return &cp, true
		}
	}
	return nil, false
}
