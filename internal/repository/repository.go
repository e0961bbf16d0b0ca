package repository

import (
	"context"
	"strings"

	"fastpartybox/internal/domain"
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring   string
	IncludeArchived bool
	Limit           int
}

// OrderFilter параметры выборки заказов. Результат всегда от новых к старым.
type OrderFilter struct {
	Status     domain.OrderStatus
	CustomerID string
	Limit      int
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	CreateProduct(ctx context.Context, tenant string, p *domain.Product) error
	GetProduct(ctx context.Context, tenant, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, tenant string, p *domain.Product) error
	DeleteProduct(ctx context.Context, tenant, id string) error
	ListProducts(ctx context.Context, tenant string, f ProductFilter) ([]domain.Product, error)
	CountProducts(ctx context.Context, tenant string) (int64, error)
}

// OrderRepository интерфейс чтения заказов. Все изменения заказов идут через Batch.
type OrderRepository interface {
	GetOrder(ctx context.Context, tenant, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, tenant string, f OrderFilter) ([]domain.Order, error)
}

// CustomerRepository интерфейс репозитория покупателей
type CustomerRepository interface {
	CreateCustomer(ctx context.Context, tenant string, c *domain.Customer) error
	GetCustomer(ctx context.Context, tenant, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, tenant, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, tenant string, limit int) ([]domain.Customer, error)
}

// AccountRepository хранит подписки пользователей
type AccountRepository interface {
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	SaveAccount(ctx context.Context, a *domain.Account) error
}

// Batcher выдаёт пакет атомарной записи в пространстве арендатора
type Batcher interface {
	NewBatch(tenant string) Batch
}

// Batch all-or-nothing multi-document write. Nothing reaches the store
// before Commit; a write against a missing document fails the whole batch.
type Batch interface {
	// CreateOrder assigns o.ID immediately; timestamps are set on commit.
	CreateOrder(o *domain.Order)
	UpdateOrder(o *domain.Order)
	// IncrementStock is an atomic counter update, safe under concurrent writers.
	IncrementStock(productID string, delta int64, change domain.StockChange)
	SetStock(productID string, qty int64, change domain.StockChange)
	// CreateCustomer assigns c.ID immediately.
	CreateCustomer(c *domain.Customer)
	IncrementCustomer(customerID string, delta domain.CustomerDelta)
	Len() int
	Commit(ctx context.Context) error
}

// Store полный набор операций удалённого хранилища
type Store interface {
	ProductRepository
	OrderRepository
	CustomerRepository
	AccountRepository
	Batcher
	Ping(ctx context.Context) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
