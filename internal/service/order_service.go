package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

// OrderService реализует логику заказов: резервирование, оформление, отмена
type OrderService struct {
	store   repository.Store
	coord   *offline.Coordinator
	monitor *offline.Monitor
	carts   *offline.CartStore
	catalog *offline.CatalogSnapshot
	events  events.Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewOrderService(
	store repository.Store,
	coord *offline.Coordinator,
	monitor *offline.Monitor,
	carts *offline.CartStore,
	catalog *offline.CatalogSnapshot,
	pub events.Publisher,
	log *zap.Logger,
) *OrderService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &OrderService{
		store:   store,
		coord:   coord,
		monitor: monitor,
		carts:   carts,
		catalog: catalog,
		events:  pub,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CheckoutInput describes a sale. AmountPaid defaults to the full total in
// retail mode and to zero in wholesale mode.
type CheckoutInput struct {
	Mode       domain.PriceMode    `json:"mode"`
	Items      []CheckoutItem      `json:"items"`
	Customer   *domain.CustomerRef `json:"customer,omitempty"`
	AmountPaid *decimal.Decimal    `json:"amount_paid,omitempty"`

	// priced lines taken from a cart; Items is ignored when set
	lines []domain.LineItem
}

type CheckoutResult struct {
	Order  domain.Order `json:"order"`
	Queued bool         `json:"queued"`
}

// ReserveStock checks every line against current stock and, when all pass,
// commits the decrements together with the order in one batch. The check
// and the write are not serialized against other writers.
func (s *OrderService) ReserveStock(ctx context.Context, tenant string, order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.NewValidationError("items", "order has no items")
	}
	qty := order.Quantities()
	for _, id := range order.ProductIDs() {
		p, err := s.store.GetProduct(ctx, tenant, id)
		if err != nil {
			return err
		}
		if qty[id] > p.StockQty {
			return &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: p.Name,
				Requested:   qty[id],
				Available:   p.StockQty,
			}
		}
	}

	b := s.store.NewBatch(tenant)
	if err := repository.StageOrder(ctx, s.store, b, tenant, order); err != nil {
		return err
	}
	return b.Commit(ctx)
}

// Checkout prices and validates a sale, then commits it when the remote
// store is reachable or queues it locally when it is not.
func (s *OrderService) Checkout(ctx context.Context, tenant string, in CheckoutInput) (*CheckoutResult, error) {
	if err := validateCheckout(in); err != nil {
		return nil, err
	}
	online := s.monitor.Online()

	lines := in.lines
	if lines == nil {
		var err error
		lines, online, err = s.price(ctx, tenant, in, online)
		if err != nil {
			return nil, err
		}
	}

	order, err := s.buildOrder(in, lines)
	if err != nil {
		return nil, err
	}

	if online {
		// staging assigns ids, so a fallback must queue the untouched copy
		pending := cloneOrder(order)
		err := s.ReserveStock(ctx, tenant, &order)
		if err == nil {
			ev := events.New(events.OrderCommitted, tenant, order.ID, order.Total)
			events.Emit(ctx, s.events, s.log, ev)
			return &CheckoutResult{Order: order}, nil
		}
		if !errors.Is(err, domain.ErrTransport) {
			return nil, err
		}
		s.log.Warn("order commit failed, queueing locally", zap.String("tenant", tenant), zap.Error(err))
		// the next successful probe is then a reconnect and drains the queue
		s.monitor.SetOnline(false)
		return s.enqueue(ctx, tenant, pending, false)
	}
	return s.enqueue(ctx, tenant, order, true)
}

func (s *OrderService) enqueue(ctx context.Context, tenant string, order domain.Order, createdOffline bool) (*CheckoutResult, error) {
	po, err := s.coord.Enqueue(ctx, tenant, order, createdOffline)
	if err != nil && !errors.Is(err, domain.ErrQuotaExceeded) {
		return nil, err
	}
	// a quota error still leaves the order queued in memory
	return &CheckoutResult{Order: po.Order, Queued: true}, err
}

// CheckoutCart checks out the tenant's current cart at the cart's prices and
// empties it once the order is committed or queued.
func (s *OrderService) CheckoutCart(ctx context.Context, tenant string, customer *domain.CustomerRef, amountPaid *decimal.Decimal) (*CheckoutResult, error) {
	cart, err := s.carts.Load(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, domain.NewValidationError("cart", "cart is empty")
	}
	res, err := s.Checkout(ctx, tenant, CheckoutInput{
		Mode:       cart.Mode,
		Customer:   customer,
		AmountPaid: amountPaid,
		lines:      cart.LineItems(),
	})
	if res != nil {
		if cerr := s.carts.Clear(ctx, tenant); cerr != nil {
			s.log.Warn("cart not cleared", zap.String("tenant", tenant), zap.Error(cerr))
		}
	}
	return res, err
}

func validateCheckout(in CheckoutInput) error {
	if !in.Mode.Valid() {
		return domain.NewValidationError("mode", "must be retail or wholesale")
	}
	if len(in.Items) == 0 && len(in.lines) == 0 {
		return domain.NewValidationError("items", "order has no items")
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return domain.NewValidationError("product_id", "is required")
		}
		if it.Quantity < 1 {
			return domain.NewValidationError("quantity", "must be at least 1")
		}
	}
	if c := in.Customer; c != nil {
		if c.Phone == "" {
			return domain.NewValidationError("customer.phone", "is required")
		}
		if c.Name == "" {
			return domain.NewValidationError("customer.name", "is required")
		}
	}
	if in.Mode == domain.ModeWholesale && in.Customer == nil {
		return domain.NewValidationError("customer", "wholesale orders require a customer")
	}
	return nil
}

// price snapshots product names and prices. It reads the remote store while
// online and falls back to the catalog snapshot when the store is
// unreachable; the returned flag reports which source was used.
func (s *OrderService) price(ctx context.Context, tenant string, in CheckoutInput, online bool) ([]domain.LineItem, bool, error) {
	lines := make([]domain.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		var p *domain.Product
		if online {
			var err error
			p, err = s.store.GetProduct(ctx, tenant, it.ProductID)
			if errors.Is(err, domain.ErrTransport) {
				s.log.Warn("product lookup failed, pricing from catalog snapshot", zap.Error(err))
				return s.price(ctx, tenant, in, false)
			}
			if err != nil {
				return nil, online, err
			}
		} else {
			var ok bool
			if s.catalog != nil {
				p, ok = s.catalog.Lookup(ctx, tenant, it.ProductID)
			}
			if !ok {
				return nil, online, domain.NewNotFoundError("product", it.ProductID)
			}
		}
		lines = append(lines, domain.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: domain.ItemFromProduct(*p, it.Quantity).Price(in.Mode),
			ImageURL:  p.ImageURL,
		})
	}
	return lines, online, nil
}

func (s *OrderService) buildOrder(in CheckoutInput, lines []domain.LineItem) (domain.Order, error) {
	total := decimal.Zero
	for _, li := range lines {
		total = total.Add(li.Amount())
	}

	paid := decimal.Zero
	if in.Mode == domain.ModeRetail {
		paid = total
	}
	if in.AmountPaid != nil {
		paid = *in.AmountPaid
	}
	switch {
	case paid.IsNegative():
		return domain.Order{}, domain.NewValidationError("amount_paid", "cannot be negative")
	case paid.GreaterThan(total):
		return domain.Order{}, domain.NewValidationError("amount_paid", "cannot exceed the order total")
	case !domain.HasAtMostTwoDecimals(paid):
		return domain.Order{}, domain.NewValidationError("amount_paid", "cannot have more than 2 decimal places")
	}

	var customer *domain.CustomerRef
	if in.Customer != nil {
		ref := *in.Customer
		customer = &ref
	}
	return domain.Order{
		Mode:          in.Mode,
		Items:         lines,
		Total:         total,
		AmountPaid:    paid,
		BalanceDue:    total.Sub(paid),
		PaymentStatus: domain.PaymentStatusFor(total, paid),
		Customer:      customer,
		Status:        domain.OrderStatusPending,
		CreatedAt:     s.now(),
	}, nil
}

// CancelOrder returns every line's quantity to the product's current stock,
// marks the order cancelled and reverses the customer's totals, in one batch.
// Orders still waiting in the local queue cannot be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, tenant, id, by string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if s.coord.IsPending(ctx, tenant, id) {
		return nil, fmt.Errorf("%w: order %s has not been synced yet", domain.ErrInvalidState, id)
	}
	o, err := s.store.GetOrder(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if o.IsCancelled() {
		return nil, fmt.Errorf("%w: order %s is already cancelled", domain.ErrInvalidState, id)
	}

	b := s.store.NewBatch(tenant)
	qty := o.Quantities()
	for _, pid := range o.ProductIDs() {
		// re-read so the restore is additive to whatever happened since the sale
		p, err := s.store.GetProduct(ctx, tenant, pid)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("product gone, stock not restored",
				zap.String("tenant", tenant), zap.String("order_id", o.ID), zap.String("product_id", pid))
			continue
		}
		if err != nil {
			return nil, err
		}
		prev := p.StockQty
		next := prev + qty[pid]
		b.SetStock(pid, next, domain.StockChange{
			Type:          domain.StockChangeOrderCancelled,
			Quantity:      qty[pid],
			PreviousStock: &prev,
			NewStock:      &next,
			OrderID:       o.ID,
		})
	}

	now := s.now()
	o.PreviousStatus = o.Status
	o.Status = domain.OrderStatusCancelled
	o.CancelledAt = &now
	o.CancelledBy = by
	b.UpdateOrder(o)
	if o.Customer != nil && o.Customer.ID != "" {
		b.IncrementCustomer(o.Customer.ID, o.LedgerDelta().Neg())
	}
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.New(events.OrderCancelled, tenant, o.ID, o.Total))
	s.log.Info("order cancelled", zap.String("tenant", tenant), zap.String("order_id", o.ID), zap.String("by", by))
	return o, nil
}

// GetOrder looks in the local queue first, then the remote store.
func (s *OrderService) GetOrder(ctx context.Context, tenant, id string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if po, ok := s.coord.Queue(ctx, tenant).Get(id); ok {
		o := po.Order
		return &o, nil
	}
	return s.store.GetOrder(ctx, tenant, id)
}

// OrderList is the tenant's queued orders (newest first) followed by the
// remote ones. Offline is set when only the queue could be read.
type OrderList struct {
	Orders  []domain.Order `json:"orders"`
	Pending int            `json:"pending"`
	Offline bool           `json:"offline"`
}

func (s *OrderService) ListOrders(ctx context.Context, tenant string, f repository.OrderFilter) (*OrderList, error) {
	out := &OrderList{Orders: []domain.Order{}}
	if f.Status != domain.OrderStatusCancelled {
		queued := s.coord.Queue(ctx, tenant).List()
		sort.SliceStable(queued, func(i, j int) bool { return queued[i].LocalID > queued[j].LocalID })
		for _, po := range queued {
			if f.CustomerID != "" && (po.Order.Customer == nil || po.Order.Customer.ID != f.CustomerID) {
				continue
			}
			out.Orders = append(out.Orders, po.Order)
		}
		out.Pending = len(out.Orders)
	}

	remote, err := s.store.ListOrders(ctx, tenant, f)
	if errors.Is(err, domain.ErrTransport) {
		s.log.Warn("listing queued orders only", zap.String("tenant", tenant), zap.Error(err))
		out.Offline = true
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.Orders = append(out.Orders, remote...)
	if f.Limit > 0 && len(out.Orders) > f.Limit {
		out.Orders = out.Orders[:f.Limit]
	}
	return out, nil
}

func cloneOrder(o domain.Order) domain.Order {
	cp := o
	cp.Items = append([]domain.LineItem(nil), o.Items...)
	if o.Customer != nil {
		ref := *o.Customer
		cp.Customer = &ref
	}
	return cp
}
