package offline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/localstore"
)

// CartStore keeps each tenant's working cart in memory and writes it through
// to local storage, so a restart resumes the same cart.
type CartStore struct {
	mu    sync.Mutex
	kv    localstore.KV
	carts map[string]domain.Cart
	log   *zap.Logger
}

func NewCartStore(kv localstore.KV, log *zap.Logger) *CartStore {
	return &CartStore{kv: kv, carts: make(map[string]domain.Cart), log: log}
}

// Load returns the in-memory cart, restoring it from local storage on first use.
func (s *CartStore) Load(ctx context.Context, tenant string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[tenant]; ok {
		return cloneCart(c), nil
	}
	cart := domain.NewCart()
	found, err := loadJSON(ctx, s.kv, CartKey(tenant), &cart)
	if err != nil {
		s.log.Warn("stored cart unreadable, starting empty", zap.String("tenant", tenant), zap.Error(err))
	}
	if !found {
		cart = domain.NewCart()
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	s.carts[tenant] = cart
	return cloneCart(cart), nil
}

// Save keeps cart in memory first; a persistence error is returned but the
// in-memory cart stays current.
func (s *CartStore) Save(ctx context.Context, tenant string, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.UpdatedAt = time.Now().UTC()
	s.carts[tenant] = cloneCart(cart)
	err := persistJSON(ctx, s.kv, CartKey(tenant), cart, cart.WithoutImages(), CatalogKey(tenant))
	if err != nil {
		s.log.Warn("cart not persisted", zap.String("tenant", tenant), zap.Error(err))
	}
	return err
}

func (s *CartStore) Clear(ctx context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[tenant] = domain.NewCart()
	return s.kv.Remove(ctx, CartKey(tenant))
}

// Forget drops the in-memory copy; the stored cart is kept for the next sign-in.
func (s *CartStore) Forget(tenant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, tenant)
}

func cloneCart(c domain.Cart) domain.Cart {
	cp := c
	cp.Items = append([]domain.CartItem{}, c.Items...)
	return cp
}
