package repository

import (
	"context"
	"errors"

	"fastpartybox/internal/domain"
)

type CustomerFinder interface {
	FindCustomerByPhone(ctx context.Context, tenant, phone string) (*domain.Customer, error)
}

// ResolveCustomer fills ref.ID for a customer known only by phone. An
// unknown phone stages the customer's creation in b.
func ResolveCustomer(ctx context.Context, finder CustomerFinder, b Batch, tenant string, ref *domain.CustomerRef) error {
	if ref == nil || ref.ID != "" {
		return nil
	}
	c, err := finder.FindCustomerByPhone(ctx, tenant, ref.Phone)
	switch {
	case err == nil:
		ref.ID = c.ID
		return nil
	case errors.Is(err, domain.ErrNotFound):
		nc := domain.Customer{
			Name:  ref.Name,
			Phone: ref.Phone,
			Email: ref.Email,
			GST:   ref.GST,
		}
		b.CreateCustomer(&nc)
		ref.ID = nc.ID
		return nil
	default:
		return err
	}
}

// StageOrder stages creation of o together with one stock decrement per
// product and the customer ledger update.
func StageOrder(ctx context.Context, finder CustomerFinder, b Batch, tenant string, o *domain.Order) error {
	if err := ResolveCustomer(ctx, finder, b, tenant, o.Customer); err != nil {
		return err
	}

	b.CreateOrder(o)
	qty := o.Quantities()
	for _, id := range o.ProductIDs() {
		b.IncrementStock(id, -qty[id], domain.SaleChange(qty[id], o.ID))
	}
	if o.Customer != nil {
		b.IncrementCustomer(o.Customer.ID, o.LedgerDelta())
	}
	return nil
}
