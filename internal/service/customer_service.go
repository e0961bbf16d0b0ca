package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

// CustomerService ведёт покупателей и их задолженность
type CustomerService struct {
	store  repository.Store
	coord  *offline.Coordinator
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewCustomerService(store repository.Store, coord *offline.Coordinator, pub events.Publisher, log *zap.Logger) *CustomerService {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &CustomerService{
		store:  store,
		coord:  coord,
		events: pub,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *CustomerService) Create(ctx context.Context, tenant string, c domain.Customer) (*domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	if c.Name == "" {
		return nil, domain.NewValidationError("name", "is required")
	}
	if c.Phone == "" {
		return nil, domain.NewValidationError("phone", "is required")
	}
	_, err := s.store.FindCustomerByPhone(ctx, tenant, c.Phone)
	switch {
	case err == nil:
		return nil, domain.NewValidationError("phone", "customer with this phone already exists")
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	c.ID = ""
	c.TotalSpent = decimal.Zero
	c.TotalPaid = decimal.Zero
	c.TotalDue = decimal.Zero
	c.LastOrderAt = nil
	c.LastPaymentAt = nil
	if err := s.store.CreateCustomer(ctx, tenant, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CustomerService) Get(ctx context.Context, tenant, id string) (*domain.Customer, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return s.store.GetCustomer(ctx, tenant, id)
}

func (s *CustomerService) List(ctx context.Context, tenant string, limit int) ([]domain.Customer, error) {
	return s.store.ListCustomers(ctx, tenant, limit)
}

// ResolveCustomer fills ref.ID from an existing customer with the same phone,
// or stages the customer's creation in b.
func (s *CustomerService) ResolveCustomer(ctx context.Context, tenant string, b repository.Batch, ref *domain.CustomerRef) error {
	return repository.ResolveCustomer(ctx, s.store, b, tenant, ref)
}

// RecordPayment applies a payment against the order's balance due and moves
// the same amount from due to paid on the customer, in one batch.
func (s *CustomerService) RecordPayment(ctx context.Context, tenant, orderID string, amount decimal.Decimal, notes string) (*domain.Order, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be greater than zero")
	}
	if !domain.HasAtMostTwoDecimals(amount) {
		return nil, domain.NewValidationError("amount", "cannot have more than 2 decimal places")
	}
	if s.coord != nil && s.coord.IsPending(ctx, tenant, orderID) {
		return nil, fmt.Errorf("%w: order %s has not been synced yet", domain.ErrInvalidState, orderID)
	}
	o, err := s.store.GetOrder(ctx, tenant, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsCancelled() {
		return nil, fmt.Errorf("%w: order %s is cancelled", domain.ErrInvalidState, orderID)
	}
	if amount.GreaterThan(o.BalanceDue) {
		return nil, domain.NewValidationError("amount", "cannot exceed balance due of "+o.BalanceDue.StringFixed(2))
	}

	now := s.now()
	balance := o.BalanceDue.Sub(amount)
	o.AmountPaid = o.AmountPaid.Add(amount)
	o.BalanceDue = balance
	o.PaymentStatus = domain.PaymentPartial
	if !balance.IsPositive() {
		o.PaymentStatus = domain.PaymentPaid
	}
	o.Payments = append(o.Payments, domain.Payment{Amount: amount, Notes: notes, Balance: balance, PaidAt: now})

	b := s.store.NewBatch(tenant)
	b.UpdateOrder(o)
	if o.Customer != nil && o.Customer.ID != "" {
		b.IncrementCustomer(o.Customer.ID, domain.CustomerDelta{
			Spent:     decimal.Zero,
			Paid:      amount,
			Due:       amount.Neg(),
			PaymentAt: &now,
		})
	}
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, s.log, events.New(events.PaymentRecorded, tenant, o.ID, amount))
	return o, nil
}
