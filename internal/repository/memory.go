package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fastpartybox/internal/domain"
)

type tenantData struct {
	products  map[string]domain.Product
	orders    map[string]domain.Order
	customers map[string]domain.Customer
}

// MemoryStore in-memory хранилище с разбиением по арендаторам
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*tenantData
	accounts map[string]domain.Account
	down     error
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*tenantData),
		accounts: make(map[string]domain.Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

// SetUnavailable makes every call fail with a TransportError wrapping err.
// A nil err brings the store back.
func (m *MemoryStore) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = err
}

// SetClock overrides the server clock.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// must be called with mu held
func (m *MemoryStore) checkUp(op string) error {
	if m.down != nil {
		return domain.NewTransportError(op, m.down)
	}
	return nil
}

// must be called with the write lock held
func (m *MemoryStore) tenant(id string) *tenantData {
	t, ok := m.tenants[id]
	if !ok {
		t = &tenantData{
			products:  make(map[string]domain.Product),
			orders:    make(map[string]domain.Order),
			customers: make(map[string]domain.Customer),
		}
		m.tenants[id] = t
	}
	return t
}

// readTenant returns nil for unknown tenants; callers hold the read lock.
func (m *MemoryStore) readTenant(id string) *tenantData {
	return m.tenants[id]
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkUp("ping")
}

// ProductRepository implementation
func (m *MemoryStore) CreateProduct(ctx context.Context, tenant string, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("create product"); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := m.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.tenant(tenant).products[p.ID] = cloneProduct(*p)
	return nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, tenant, id string) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("get product"); err != nil {
		return nil, err
	}
	t := m.readTenant(tenant)
	if t == nil {
		return nil, domain.NewNotFoundError("product", id)
	}
	p, ok := t.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product", id)
	}
	cp := cloneProduct(p)
	return &cp, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, tenant string, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("update product"); err != nil {
		return err
	}
	t := m.tenant(tenant)
	old, ok := t.products[p.ID]
	if !ok {
		return domain.NewNotFoundError("product", p.ID)
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = m.now()
	t.products[p.ID] = cloneProduct(*p)
	return nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, tenant, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("delete product"); err != nil {
		return err
	}
	t := m.tenant(tenant)
	if _, ok := t.products[id]; !ok {
		return domain.NewNotFoundError("product", id)
	}
	delete(t.products, id)
	return nil
}

func (m *MemoryStore) ListProducts(ctx context.Context, tenant string, f ProductFilter) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("list products"); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0)
	t := m.readTenant(tenant)
	if t == nil {
		return out, nil
	}
	for _, p := range t.products {
		if p.Archived && !f.IncludeArchived {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountProducts(ctx context.Context, tenant string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("count products"); err != nil {
		return 0, err
	}
	t := m.readTenant(tenant)
	if t == nil {
		return 0, nil
	}
	return int64(len(t.products)), nil
}

// OrderRepository implementation
func (m *MemoryStore) GetOrder(ctx context.Context, tenant, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("get order"); err != nil {
		return nil, err
	}
	t := m.readTenant(tenant)
	if t == nil {
		return nil, domain.NewNotFoundError("order", id)
	}
	o, ok := t.orders[id]
	if !ok {
		return nil, domain.NewNotFoundError("order", id)
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, tenant string, f OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("list orders"); err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0)
	t := m.readTenant(tenant)
	if t == nil {
		return out, nil
	}
	for _, o := range t.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && (o.Customer == nil || o.Customer.ID != f.CustomerID) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CustomerRepository implementation
func (m *MemoryStore) CreateCustomer(ctx context.Context, tenant string, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("create customer"); err != nil {
		return err
	}
	t := m.tenant(tenant)
	if phoneTaken(t, c.Phone) {
		return domain.NewValidationError("phone", "customer with this phone already exists")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := m.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	t.customers[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetCustomer(ctx context.Context, tenant, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("get customer"); err != nil {
		return nil, err
	}
	t := m.readTenant(tenant)
	if t == nil {
		return nil, domain.NewNotFoundError("customer", id)
	}
	c, ok := t.customers[id]
	if !ok {
		return nil, domain.NewNotFoundError("customer", id)
	}
	return &c, nil
}

func (m *MemoryStore) FindCustomerByPhone(ctx context.Context, tenant, phone string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("find customer"); err != nil {
		return nil, err
	}
	if t := m.readTenant(tenant); t != nil {
		for _, c := range t.customers {
			if c.Phone == phone {
				cp := c
				return &cp, nil
			}
		}
	}
	return nil, domain.NewNotFoundError("customer", phone)
}

func (m *MemoryStore) ListCustomers(ctx context.Context, tenant string, limit int) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("list customers"); err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0)
	t := m.readTenant(tenant)
	if t == nil {
		return out, nil
	}
	for _, c := range t.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func phoneTaken(t *tenantData, phone string) bool {
	for _, c := range t.customers {
		if c.Phone == phone {
			return true
		}
	}
	return false
}

// AccountRepository implementation
func (m *MemoryStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("get account"); err != nil {
		return nil, err
	}
	a, ok := m.accounts[userID]
	if !ok {
		return nil, domain.NewNotFoundError("account", userID)
	}
	return &a, nil
}

func (m *MemoryStore) SaveAccount(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("save account"); err != nil {
		return err
	}
	a.UpdatedAt = m.now()
	m.accounts[a.UserID] = *a
	return nil
}

// Batcher implementation
func (m *MemoryStore) NewBatch(tenant string) Batch {
	return &memoryBatch{staged: staged{tenant: tenant}, store: m}
}

type memoryBatch struct {
	staged
	store *MemoryStore
}

// Commit validates every target under the write lock, then applies all writes.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewTransportError("commit", err)
	}
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("commit"); err != nil {
		return err
	}
	t := m.tenant(b.tenant)
	if err := b.validate(t); err != nil {
		return err
	}

	now := m.now()
	for _, o := range b.ops {
		switch o.kind {
		case opCreateOrder:
			if o.order.CreatedAt.IsZero() {
				o.order.CreatedAt = now
			}
			synced := now
			o.order.SyncedAt = &synced
			o.order.UpdatedAt = now
			t.orders[o.id] = cloneOrder(*o.order)
		case opUpdateOrder:
			o.order.UpdatedAt = now
			t.orders[o.id] = cloneOrder(*o.order)
		case opIncrementStock:
			p := t.products[o.id]
			p.StockQty += o.qty
			p.LastStockChange = stamp(o.change, now)
			p.UpdatedAt = now
			t.products[o.id] = p
		case opSetStock:
			p := t.products[o.id]
			p.StockQty = o.qty
			p.LastStockChange = stamp(o.change, now)
			p.UpdatedAt = now
			t.products[o.id] = p
		case opCreateCustomer:
			o.customer.CreatedAt = now
			o.customer.UpdatedAt = now
			t.customers[o.id] = *o.customer
		case opIncrementCustomer:
			c := t.customers[o.id]
			applyLedger(&c, o.ledger)
			c.UpdatedAt = now
			t.customers[o.id] = c
		}
	}
	return nil
}

func (b *memoryBatch) validate(t *tenantData) error {
	newCustomers := make(map[string]bool)
	for _, o := range b.ops {
		switch o.kind {
		case opCreateOrder:
			if _, exists := t.orders[o.id]; exists {
				return domain.NewValidationError("order", "order "+o.id+" already exists")
			}
		case opUpdateOrder:
			if _, ok := t.orders[o.id]; !ok {
				return domain.NewNotFoundError("order", o.id)
			}
		case opIncrementStock, opSetStock:
			if _, ok := t.products[o.id]; !ok {
				return domain.NewNotFoundError("product", o.id)
			}
		case opCreateCustomer:
			if phoneTaken(t, o.customer.Phone) {
				return domain.NewValidationError("phone", "customer with this phone already exists")
			}
			newCustomers[o.id] = true
		case opIncrementCustomer:
			if _, ok := t.customers[o.id]; !ok && !newCustomers[o.id] {
				return domain.NewNotFoundError("customer", o.id)
			}
		}
	}
	return nil
}

func stamp(change domain.StockChange, now time.Time) *domain.StockChange {
	c := change
	c.Timestamp = now
	return &c
}

func applyLedger(c *domain.Customer, d domain.CustomerDelta) {
	c.TotalSpent = c.TotalSpent.Add(d.Spent)
	c.TotalPaid = c.TotalPaid.Add(d.Paid)
	c.TotalDue = c.TotalDue.Add(d.Due)
	if d.OrderAt != nil {
		at := *d.OrderAt
		c.LastOrderAt = &at
	}
	if d.PaymentAt != nil {
		at := *d.PaymentAt
		c.LastPaymentAt = &at
	}
}

// return copies so callers never alias stored slices
func cloneProduct(p domain.Product) domain.Product {
	cp := p
	if p.LastStockChange != nil {
		ch := *p.LastStockChange
		cp.LastStockChange = &ch
	}
	return cp
}

func cloneOrder(o domain.Order) domain.Order {
	cp := o
	cp.Items = append([]domain.LineItem(nil), o.Items...)
	cp.Payments = append([]domain.Payment(nil), o.Payments...)
	if o.Customer != nil {
		c := *o.Customer
		cp.Customer = &c
	}
	return cp
}
