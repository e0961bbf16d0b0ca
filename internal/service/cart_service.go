package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

// CartService edits the tenant's working cart. Stock limits come from the
// remote store, or from the catalog snapshot while it is unreachable.
type CartService struct {
	carts    *offline.CartStore
	products repository.ProductRepository
	catalog  *offline.CatalogSnapshot
	monitor  *offline.Monitor
	log      *zap.Logger
}

func NewCartService(carts *offline.CartStore, products repository.ProductRepository, catalog *offline.CatalogSnapshot, monitor *offline.Monitor, log *zap.Logger) *CartService {
	return &CartService{carts: carts, products: products, catalog: catalog, monitor: monitor, log: log}
}

func (s *CartService) Get(ctx context.Context, tenant string) (domain.Cart, error) {
	return s.carts.Load(ctx, tenant)
}

// Forget releases the in-memory cart of a signed-out user; the stored copy
// is restored on the next Get.
func (s *CartService) Forget(tenant string) {
	s.carts.Forget(tenant)
}

func (s *CartService) product(ctx context.Context, tenant, id string) (*domain.Product, error) {
	if s.monitor.Online() {
		p, err := s.products.GetProduct(ctx, tenant, id)
		if !errors.Is(err, domain.ErrTransport) {
			return p, err
		}
		s.log.Debug("product lookup failed, using catalog snapshot", zap.String("product_id", id), zap.Error(err))
	}
	if s.catalog != nil {
		if p, ok := s.catalog.Lookup(ctx, tenant, id); ok {
			return p, nil
		}
	}
	return nil, domain.NewNotFoundError("product", id)
}

// AddItem adds one unit. The returned cart is current even when saving it
// locally failed.
func (s *CartService) AddItem(ctx context.Context, tenant, productID string) (domain.Cart, error) {
	return s.edit(ctx, tenant, func(c *domain.Cart) error {
		p, err := s.product(ctx, tenant, productID)
		if err != nil {
			return err
		}
		if p.Archived {
			return domain.NewValidationError("product", p.Name+" is archived")
		}
		return c.Add(*p)
	})
}

func (s *CartService) SetQuantity(ctx context.Context, tenant, productID string, qty int64) (domain.Cart, error) {
	return s.edit(ctx, tenant, func(c *domain.Cart) error {
		p, err := s.product(ctx, tenant, productID)
		if err != nil {
			return err
		}
		return c.SetQuantity(*p, qty)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, tenant, productID string) (domain.Cart, error) {
	return s.edit(ctx, tenant, func(c *domain.Cart) error {
		if !c.Remove(productID) {
			return domain.NewNotFoundError("cart item", productID)
		}
		return nil
	})
}

func (s *CartService) SetMode(ctx context.Context, tenant string, mode domain.PriceMode) (domain.Cart, error) {
	return s.edit(ctx, tenant, func(c *domain.Cart) error { return c.SetMode(mode) })
}

func (s *CartService) Clear(ctx context.Context, tenant string) error {
	return s.carts.Clear(ctx, tenant)
}

// edit applies fn to a copy of the cart and saves it only if fn succeeds.
func (s *CartService) edit(ctx context.Context, tenant string, fn func(*domain.Cart) error) (domain.Cart, error) {
	cart, err := s.carts.Load(ctx, tenant)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := fn(&cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, s.carts.Save(ctx, tenant, cart)
}
