package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

func orderFor(quantities map[string]int64, ids []string) *domain.Order {
	o := &domain.Order{Mode: domain.ModeRetail, Status: domain.OrderStatusPending}
	for _, id := range ids {
		o.Items = append(o.Items, domain.LineItem{ProductID: id, Name: "Item " + id, Quantity: quantities[id], UnitPrice: dec("10")})
	}
	return o
}

func TestReserveStock_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := newEnv()
		ctx := context.Background()

		n := rapid.IntRange(1, 4).Draw(rt, "products")
		ids := make([]string, n)
		before := make(map[string]int64, n)
		qty := make(map[string]int64, n)
		feasible := true
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("P%d", i)
			ids[i] = id
			before[id] = rapid.Int64Range(0, 20).Draw(rt, "stock-"+id)
			qty[id] = rapid.Int64Range(1, 25).Draw(rt, "qty-"+id)
			e.addProduct(id, before[id], 10, 8)
			if qty[id] > before[id] {
				feasible = false
			}
		}

		err := e.orders.ReserveStock(ctx, tenant, orderFor(qty, ids))
		orders, _ := e.store.ListOrders(ctx, tenant, repository.OrderFilter{})

		if feasible {
			if err != nil {
				rt.Fatalf("feasible reservation failed: %v", err)
			}
			for _, id := range ids {
				if got := e.stock(id); got != before[id]-qty[id] {
					rt.Fatalf("%s: stock %d, want %d", id, got, before[id]-qty[id])
				}
			}
			if len(orders) != 1 {
				rt.Fatalf("expected one order, got %d", len(orders))
			}
			return
		}

		if !errors.Is(err, domain.ErrInsufficientStock) {
			rt.Fatalf("expected insufficient stock, got %v", err)
		}
		for _, id := range ids {
			if got := e.stock(id); got != before[id] {
				rt.Fatalf("%s: stock changed to %d after a rejected reservation", id, got)
			}
		}
		if len(orders) != 0 {
			rt.Fatalf("rejected reservation wrote %d orders", len(orders))
		}
	})
}

func TestReserveStock_NamesTheShortProduct(t *testing.T) {
	e := newEnv()
	e.addProduct("P1", 5, 10, 8)
	e.addProduct("P2", 1, 10, 8)

	err := e.orders.ReserveStock(context.Background(), tenant, orderFor(map[string]int64{"P1": 2, "P2": 2}, []string{"P1", "P2"}))
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "Item P2", ise.ProductName)
	assert.Equal(t, int64(2), ise.Requested)
	assert.Equal(t, int64(1), ise.Available)
	assert.Equal(t, int64(5), e.stock("P1"))
}

func TestReserveStock_MissingProduct(t *testing.T) {
	e := newEnv()
	e.addProduct("P1", 5, 10, 8)

	err := e.orders.ReserveStock(context.Background(), tenant, orderFor(map[string]int64{"P1": 1, "gone": 1}, []string{"P1", "gone"}))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if e.stock("P1") != 5 {
		t.Fatalf("stock must not change")
	}
}

func TestReserveStock_AuditEntry(t *testing.T) {
	e := newEnv()
	e.addProduct("P1", 5, 10, 8)
	o := orderFor(map[string]int64{"P1": 2}, []string{"P1"})
	require.NoError(t, e.orders.ReserveStock(context.Background(), tenant, o))

	p, _ := e.store.GetProduct(context.Background(), tenant, "P1")
	require.NotNil(t, p.LastStockChange)
	assert.Equal(t, domain.StockChangeSale, p.LastStockChange.Type)
	assert.Equal(t, int64(-2), p.LastStockChange.Quantity)
	assert.Equal(t, o.ID, p.LastStockChange.OrderID)
	assert.False(t, p.LastStockChange.Timestamp.IsZero())
}

func TestCheckout_RetailOnline(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)
	e.addProduct("P2", 10, 50, 40)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.NotEmpty(t, res.Order.ID)
	assert.True(t, res.Order.Total.Equal(dec("250")))
	assert.True(t, res.Order.AmountPaid.Equal(dec("250")))
	assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
	assert.NotNil(t, res.Order.SyncedAt)
	assert.False(t, res.Order.CreatedOffline)
	assert.Equal(t, int64(8), e.stock("P1"))
	assert.Equal(t, int64(9), e.stock("P2"))
	assert.Equal(t, []events.Type{events.OrderCommitted}, e.events.Types())
}

func TestCheckout_WholesaleCreatesCustomer(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)

	_, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeWholesale,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 2}},
	})
	assert.True(t, errors.Is(err, domain.ErrValidation), "wholesale needs a customer")

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:       domain.ModeWholesale,
		Items:      []CheckoutItem{{ProductID: "P1", Quantity: 2}},
		Customer:   &domain.CustomerRef{Name: "Ravi Stores", Phone: "9000000001"},
		AmountPaid: decPtr("60"),
	})
	require.NoError(t, err)
	assert.True(t, res.Order.Total.Equal(dec("160")))
	assert.True(t, res.Order.BalanceDue.Equal(dec("100")))
	assert.Equal(t, domain.PaymentPartial, res.Order.PaymentStatus)

	c, err := e.store.FindCustomerByPhone(ctx, tenant, "9000000001")
	require.NoError(t, err)
	assert.Equal(t, c.ID, res.Order.Customer.ID)
	assert.True(t, c.TotalSpent.Equal(dec("160")))
	assert.True(t, c.TotalPaid.Equal(dec("60")))
	assert.True(t, c.TotalDue.Equal(dec("100")))
	assert.NotNil(t, c.LastOrderAt)
}

func TestCheckout_AmountPaidValidation(t *testing.T) {
	e := newEnv()
	e.addProduct("P1", 10, 100, 80)
	items := []CheckoutItem{{ProductID: "P1", Quantity: 1}}

	for _, paid := range []string{"-1", "100.01", "10.001"} {
		_, err := e.orders.Checkout(context.Background(), tenant, CheckoutInput{Mode: domain.ModeRetail, Items: items, AmountPaid: decPtr(paid)})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("paid %s: expected validation error, got %v", paid, err)
		}
	}
	if e.stock("P1") != 10 {
		t.Fatalf("rejected checkouts must not touch stock")
	}
}

func TestCheckout_OfflineQueuesThenSyncs(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)
	_, err := e.products.List(ctx, tenant, repository.ProductFilter{})
	require.NoError(t, err)

	e.goOffline()
	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.True(t, res.Order.CreatedOffline)
	assert.NotEmpty(t, res.Order.LocalID)
	assert.Empty(t, res.Order.ID)
	assert.True(t, res.Order.Total.Equal(dec("300")), "priced from the catalog snapshot")
	assert.Equal(t, offline.StatusPending, e.coord.Status(ctx, tenant).Status)

	got, err := e.orders.GetOrder(ctx, tenant, res.Order.LocalID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.LocalID, got.LocalID)

	list, err := e.orders.ListOrders(ctx, tenant, repository.OrderFilter{})
	require.NoError(t, err)
	assert.True(t, list.Offline)
	assert.Equal(t, 1, list.Pending)

	_, err = e.orders.CancelOrder(ctx, tenant, res.Order.LocalID, "owner")
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "queued orders cannot be cancelled")

	e.goOnline()
	assert.Equal(t, int64(10), e.stock("P1"))
	drained, err := e.coord.Drain(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{res.Order.LocalID}, drained.Committed)
	assert.Equal(t, int64(7), e.stock("P1"))
	assert.Equal(t, offline.StatusSynced, e.coord.Status(ctx, tenant).Status)
}

func TestCheckout_OfflineUnknownProduct(t *testing.T) {
	e := newEnv()
	e.goOffline()
	_, err := e.orders.Checkout(context.Background(), tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}},
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found without a catalog snapshot, got %v", err)
	}
}

func TestCheckout_CommitFailureQueues(t *testing.T) {
	e := newEnvWith(func(s *repository.MemoryStore) repository.Store { return commitFails{s} })
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:     domain.ModeWholesale,
		Items:    []CheckoutItem{{ProductID: "P1", Quantity: 1}},
		Customer: &domain.CustomerRef{Name: "New Shop", Phone: "9000000002"},
	})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.False(t, res.Order.CreatedOffline, "taken while online")
	assert.Empty(t, res.Order.ID)
	assert.Empty(t, res.Order.Customer.ID, "customer is resolved again on sync")
	assert.Equal(t, int64(10), e.stock("P1"))
	assert.Contains(t, e.events.Types(), events.OrderQueued)
}

func TestCheckout_CommitFailureDrainsOnNextProbe(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEnvWith(func(s *repository.MemoryStore) repository.Store { return &commitFailsOnce{MemoryStore: s} })
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)
	e.coord.Start(ctx, nil)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, res.Queued)
	assert.False(t, e.monitor.Online(), "a failed commit marks the store unreachable")

	// store is healthy, so the probe flips back online and triggers a drain
	assert.True(t, e.monitor.Probe(ctx))
	e.coord.Stop()

	st := e.coord.Status(ctx, tenant)
	assert.Equal(t, offline.StatusSynced, st.Status)
	assert.Zero(t, st.Pending)
	assert.Equal(t, int64(9), e.stock("P1"))
}

func TestCheckoutCart(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 5, 100, 80)
	e.addProduct("P2", 5, 50, 40)

	_, err := e.orders.CheckoutCart(ctx, tenant, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation), "empty cart")

	_, err = e.carts.AddItem(ctx, tenant, "P1")
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, tenant, "P1")
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, tenant, "P2")
	require.NoError(t, err)
	cart, err := e.carts.SetMode(ctx, tenant, domain.ModeWholesale)
	require.NoError(t, err)
	assert.True(t, cart.Total().Equal(dec("200")))

	res, err := e.orders.CheckoutCart(ctx, tenant, &domain.CustomerRef{Name: "Ravi", Phone: "9000000003"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Order.Total.Equal(dec("200")))
	assert.Equal(t, domain.PaymentUnpaid, res.Order.PaymentStatus)
	assert.Equal(t, int64(3), e.stock("P1"))

	after, _ := e.carts.Get(ctx, tenant)
	assert.True(t, after.Empty())
}

func TestCancelOrder_RestoresToCurrentStock(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 13, 100, 80)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), e.stock("P1"))

	cancelled, err := e.orders.CancelOrder(ctx, tenant, res.Order.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.OrderStatusPending, cancelled.PreviousStatus)
	assert.Equal(t, "owner", cancelled.CancelledBy)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, int64(13), e.stock("P1"))

	p, _ := e.store.GetProduct(ctx, tenant, "P1")
	require.NotNil(t, p.LastStockChange)
	assert.Equal(t, domain.StockChangeOrderCancelled, p.LastStockChange.Type)
	assert.Equal(t, int64(10), *p.LastStockChange.PreviousStock)
	assert.Equal(t, int64(13), *p.LastStockChange.NewStock)
	assert.Equal(t, res.Order.ID, p.LastStockChange.OrderID)

	_, err = e.orders.CancelOrder(ctx, tenant, res.Order.ID, "owner")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.Equal(t, int64(13), e.stock("P1"))
}

func TestCancelOrder_AdditiveRestore(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{Mode: domain.ModeRetail, Items: []CheckoutItem{{ProductID: "P1", Quantity: 4}}})
	require.NoError(t, err)
	_, err = e.products.AdjustStock(ctx, tenant, "P1", 20)
	require.NoError(t, err)

	_, err = e.orders.CancelOrder(ctx, tenant, res.Order.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(24), e.stock("P1"))
}

func TestCancelOrder_ReversesCustomerTotals(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:       domain.ModeWholesale,
		Items:      []CheckoutItem{{ProductID: "P1", Quantity: 1}},
		Customer:   &domain.CustomerRef{Name: "Ravi", Phone: "9000000004"},
		AmountPaid: decPtr("30"),
	})
	require.NoError(t, err)
	_, err = e.orders.CancelOrder(ctx, tenant, res.Order.ID, "owner")
	require.NoError(t, err)

	c, err := e.store.GetCustomer(ctx, tenant, res.Order.Customer.ID)
	require.NoError(t, err)
	assert.True(t, c.TotalSpent.IsZero())
	assert.True(t, c.TotalPaid.IsZero())
	assert.True(t, c.TotalDue.IsZero())
}

func TestCancelOrder_SkipsDeletedProducts(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)
	e.addProduct("P2", 10, 50, 40)

	res, err := e.orders.Checkout(ctx, tenant, CheckoutInput{
		Mode:  domain.ModeRetail,
		Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}, {ProductID: "P2", Quantity: 2}},
	})
	require.NoError(t, err)
	require.NoError(t, e.store.DeleteProduct(ctx, tenant, "P2"))

	cancelled, err := e.orders.CancelOrder(ctx, tenant, res.Order.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(10), e.stock("P1"))

	stored, err := e.store.GetOrder(ctx, tenant, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCancelled())
}

func TestCancelOrder_Missing(t *testing.T) {
	e := newEnv()
	_, err := e.orders.CancelOrder(context.Background(), tenant, "nope", "owner")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrders_PendingFirst(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.addProduct("P1", 10, 100, 80)
	_, _ = e.products.List(ctx, tenant, repository.ProductFilter{})

	committed, err := e.orders.Checkout(ctx, tenant, CheckoutInput{Mode: domain.ModeRetail, Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}}})
	require.NoError(t, err)

	e.goOffline()
	queued, err := e.orders.Checkout(ctx, tenant, CheckoutInput{Mode: domain.ModeRetail, Items: []CheckoutItem{{ProductID: "P1", Quantity: 1}}})
	require.NoError(t, err)
	e.goOnline()

	list, err := e.orders.ListOrders(ctx, tenant, repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, list.Orders, 2)
	assert.Equal(t, queued.Order.LocalID, list.Orders[0].LocalID)
	assert.Equal(t, committed.Order.ID, list.Orders[1].ID)
	assert.False(t, list.Offline)

	cancelledOnly, err := e.orders.ListOrders(ctx, tenant, repository.OrderFilter{Status: domain.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Empty(t, cancelledOnly.Orders)
}
