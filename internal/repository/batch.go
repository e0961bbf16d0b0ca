package repository

import (
	"github.com/google/uuid"

	"fastpartybox/internal/domain"
)

type opKind int

const (
	opCreateOrder opKind = iota
	opUpdateOrder
	opIncrementStock
	opSetStock
	opCreateCustomer
	opIncrementCustomer
)

type op struct {
	kind     opKind
	order    *domain.Order
	customer *domain.Customer
	id       string
	qty      int64
	change   domain.StockChange
	ledger   domain.CustomerDelta
}

// staged collects writes in order; backends embed it and implement Commit.
type staged struct {
	tenant string
	ops    []op
}

func (b *staged) CreateOrder(o *domain.Order) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	b.ops = append(b.ops, op{kind: opCreateOrder, order: o, id: o.ID})
}

func (b *staged) UpdateOrder(o *domain.Order) {
	b.ops = append(b.ops, op{kind: opUpdateOrder, order: o, id: o.ID})
}

func (b *staged) IncrementStock(productID string, delta int64, change domain.StockChange) {
	b.ops = append(b.ops, op{kind: opIncrementStock, id: productID, qty: delta, change: change})
}

func (b *staged) SetStock(productID string, qty int64, change domain.StockChange) {
	b.ops = append(b.ops, op{kind: opSetStock, id: productID, qty: qty, change: change})
}

func (b *staged) CreateCustomer(c *domain.Customer) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	b.ops = append(b.ops, op{kind: opCreateCustomer, customer: c, id: c.ID})
}

func (b *staged) IncrementCustomer(customerID string, delta domain.CustomerDelta) {
	b.ops = append(b.ops, op{kind: opIncrementCustomer, id: customerID, ledger: delta})
}

func (b *staged) Len() int { return len(b.ops) }
