package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpartybox/internal/cache"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/localstore"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

const tenant = "user-1"

type env struct {
	store     *repository.MemoryStore
	remote    repository.Store
	kv        *localstore.MemoryKV
	monitor   *offline.Monitor
	coord     *offline.Coordinator
	catalog   *offline.CatalogSnapshot
	events    *events.Recorder
	products  *ProductService
	orders    *OrderService
	customers *CustomerService
	carts     *CartService
	subs      *SubscriptionService
}

func newEnv() *env {
	return newEnvWith(nil)
}

// newEnvWith builds services over wrap(store) when wrap is set.
func newEnvWith(wrap func(*repository.MemoryStore) repository.Store) *env {
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	var remote repository.Store = store
	if wrap != nil {
		remote = wrap(store)
	}
	kv := localstore.NewMemoryKV(0)
	rec := &events.Recorder{}
	monitor := offline.NewMonitor(store, 0, log)
	coord := offline.NewCoordinator(remote, kv, monitor, rec, log)
	catalog := offline.NewCatalogSnapshot(kv)
	cartStore := offline.NewCartStore(kv, log)
	subs := NewSubscriptionService(store, store, cache.NewTTL[domain.Tier](0), log)
	return &env{
		store:     store,
		remote:    remote,
		kv:        kv,
		monitor:   monitor,
		coord:     coord,
		catalog:   catalog,
		events:    rec,
		products:  NewProductService(store, subs, catalog, log),
		orders:    NewOrderService(remote, coord, monitor, cartStore, catalog, rec, log),
		customers: NewCustomerService(remote, coord, rec, log),
		carts:     NewCartService(cartStore, store, catalog, monitor, log),
		subs:      subs,
	}
}

// goOffline makes the remote store unreachable and tells the monitor so.
func (e *env) goOffline() {
	e.store.SetUnavailable(errors.New("network unreachable"))
	e.monitor.SetOnline(false)
}

func (e *env) goOnline() {
	e.store.SetUnavailable(nil)
	e.monitor.SetOnline(true)
}

func (e *env) addProduct(id string, stock int64, retail, wholesale int64) domain.Product {
	p := domain.Product{
		ID:             id,
		Name:           "Item " + id,
		PurchasePrice:  decimal.NewFromInt(wholesale / 2),
		MRP:            decimal.NewFromInt(retail),
		RetailPrice:    decimal.NewFromInt(retail),
		WholesalePrice: decimal.NewFromInt(wholesale),
		StockQty:       stock,
	}
	if err := e.store.CreateProduct(context.Background(), tenant, &p); err != nil {
		panic(err)
	}
	return p
}

func (e *env) stock(id string) int64 {
	p, err := e.store.GetProduct(context.Background(), tenant, id)
	if err != nil {
		panic(err)
	}
	return p.StockQty
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

// commitFails wraps a store whose batches never commit.
type commitFails struct {
	*repository.MemoryStore
}

func (c commitFails) NewBatch(tenant string) repository.Batch {
	return failingBatch{c.MemoryStore.NewBatch(tenant)}
}

type failingBatch struct {
	repository.Batch
}

func (failingBatch) Commit(context.Context) error {
	return domain.NewTransportError("commit", errors.New("deadline exceeded"))
}

// commitFailsOnce fails the first batch commit only.
type commitFailsOnce struct {
	*repository.MemoryStore
	failed atomic.Bool
}

func (c *commitFailsOnce) NewBatch(tenant string) repository.Batch {
	b := c.MemoryStore.NewBatch(tenant)
	if c.failed.CompareAndSwap(false, true) {
		return failingBatch{b}
	}
	return b
}
