package offline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastpartybox/internal/auth"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/events"
	"fastpartybox/internal/localstore"
	"fastpartybox/internal/repository"
)

// Status is a tenant's sync state.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

var ErrOffline = errors.New("remote store is offline")

// RemoteStore is what a drain needs from the remote store.
type RemoteStore interface {
	repository.Batcher
	repository.CustomerFinder
}

// StatusReport is the externally visible sync state of one tenant.
type StatusReport struct {
	Tenant     string     `json:"tenant"`
	Status     Status     `json:"status"`
	Pending    int        `json:"pending"`
	Syncing    bool       `json:"syncing"`
	LastError  string     `json:"last_error,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// DrainResult reports one drain pass.
type DrainResult struct {
	Committed []string `json:"committed"`
	Failed    []string `json:"failed"`
	Skipped   bool     `json:"skipped,omitempty"`
	StatusReport
}

type tenantSync struct {
	queue     *PendingQueue
	status    Status
	draining  bool
	lastError string
	lastSync  *time.Time
}

// Coordinator owns every loaded tenant's pending queue and replays it
// against the remote store, one order per batch.
type Coordinator struct {
	store   RemoteStore
	kv      localstore.KV
	monitor *Monitor
	events  events.Publisher
	log     *zap.Logger

	mu      sync.Mutex
	tenants map[string]*tenantSync
	unsubs  []func()
	wg      sync.WaitGroup
}

func NewCoordinator(store RemoteStore, kv localstore.KV, monitor *Monitor, pub events.Publisher, log *zap.Logger) *Coordinator {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Coordinator{
		store:   store,
		kv:      kv,
		monitor: monitor,
		events:  pub,
		log:     log,
		tenants: make(map[string]*tenantSync),
	}
}

// Start subscribes to connectivity and sign-in transitions. Drains they
// trigger run in the background under ctx until Stop.
func (c *Coordinator) Start(ctx context.Context, session *auth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubs = append(c.unsubs, c.monitor.Subscribe(func(online bool) {
		if online {
			for _, tenant := range c.Tenants() {
				c.drainAsync(ctx, tenant)
			}
		}
	}))
	if session != nil {
		c.unsubs = append(c.unsubs, session.Subscribe(func(ev auth.Event) {
			switch ev.Kind {
			case auth.SignedIn:
				c.tenant(ctx, ev.UserID)
				if c.monitor.Online() {
					c.drainAsync(ctx, ev.UserID)
				}
			case auth.SignedOut:
				c.forget(ev.UserID)
			}
		}))
	}
}

// Stop unsubscribes and waits for background drains to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
	c.wg.Wait()
}

func (c *Coordinator) drainAsync(ctx context.Context, tenant string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.Drain(ctx, tenant)
		if err != nil {
			c.log.Warn("sync drain failed", zap.String("tenant", tenant), zap.Error(err))
			return
		}
		if !res.Skipped {
			c.log.Info("sync drain finished",
				zap.String("tenant", tenant),
				zap.Int("committed", len(res.Committed)),
				zap.Int("failed", len(res.Failed)),
				zap.String("status", string(res.Status)))
		}
	}()
}

// Queue returns the tenant's pending queue, loading it on first use.
func (c *Coordinator) Queue(ctx context.Context, tenant string) *PendingQueue {
	return c.tenant(ctx, tenant).queue
}

// tenant loads the tenant's queue on first use. A non-empty restored queue
// puts the tenant in the pending state.
func (c *Coordinator) tenant(ctx context.Context, tenant string) *tenantSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.tenants[tenant]; ok {
		return ts
	}
	q, err := LoadPendingQueue(ctx, c.kv, tenant, c.log)
	if err != nil {
		c.log.Warn("stored pending orders unreadable", zap.String("tenant", tenant), zap.Error(err))
	}
	ts := &tenantSync{queue: q, status: StatusSynced}
	if q.Len() > 0 {
		ts.status = StatusPending
	}
	c.tenants[tenant] = ts
	return ts
}

func (c *Coordinator) forget(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.tenants[tenant]; ok && !ts.draining {
		delete(c.tenants, tenant)
	}
}

// Tenants lists loaded tenants, sorted.
func (c *Coordinator) Tenants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.tenants))
	for t := range c.tenants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Enqueue appends order to the tenant's queue and moves it to pending. The
// entry is kept in memory even when persisting it fails; that error is returned.
func (c *Coordinator) Enqueue(ctx context.Context, tenant string, order domain.Order, createdOffline bool) (domain.PendingOrder, error) {
	ts := c.tenant(ctx, tenant)
	if order.LocalID == "" {
		order.LocalID = NewLocalID(time.Now())
	}
	order.CreatedOffline = createdOffline
	po := domain.PendingOrder{
		LocalID:        order.LocalID,
		Order:          order,
		CreatedOffline: createdOffline,
		State:          domain.PendingQueued,
	}
	addErr := ts.queue.Add(ctx, po)
	if addErr != nil && !errors.Is(addErr, domain.ErrQuotaExceeded) {
		return domain.PendingOrder{}, addErr
	}

	c.mu.Lock()
	ts.status = StatusPending
	c.mu.Unlock()

	ev := events.New(events.OrderQueued, tenant, "", order.Total)
	ev.LocalID = po.LocalID
	events.Emit(ctx, c.events, c.log, ev)
	return po, addErr
}

// IsPending reports whether id is a local id still waiting in the queue.
func (c *Coordinator) IsPending(ctx context.Context, tenant, id string) bool {
	return c.Queue(ctx, tenant).Contains(id)
}

func (c *Coordinator) Status(ctx context.Context, tenant string) StatusReport {
	ts := c.tenant(ctx, tenant)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report(tenant, ts)
}

// must be called with mu held
func (c *Coordinator) report(tenant string, ts *tenantSync) StatusReport {
	r := StatusReport{
		Tenant:    tenant,
		Status:    ts.status,
		Pending:   ts.queue.Len(),
		Syncing:   ts.draining,
		LastError: ts.lastError,
	}
	if ts.lastSync != nil {
		at := *ts.lastSync
		r.LastSyncAt = &at
	}
	return r
}

// Drain attempts every queued order of tenant once, in queue order. A failed
// commit leaves its order queued, bumps its attempts and moves the tenant to
// error; the remaining orders are still attempted. A drain requested while
// another one runs for the same tenant is skipped.
func (c *Coordinator) Drain(ctx context.Context, tenant string) (DrainResult, error) {
	if !c.monitor.Online() {
		return DrainResult{StatusReport: c.Status(ctx, tenant)}, domain.NewTransportError("sync", ErrOffline)
	}
	ts := c.tenant(ctx, tenant)

	c.mu.Lock()
	if ts.draining {
		res := DrainResult{Skipped: true, StatusReport: c.report(tenant, ts)}
		c.mu.Unlock()
		return res, nil
	}
	ts.draining = true
	c.mu.Unlock()

	res := DrainResult{Committed: []string{}, Failed: []string{}}
	var lastErr error
	for _, po := range ts.queue.List() {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if err := c.commit(ctx, tenant, ts.queue, po); err != nil {
			lastErr = err
			res.Failed = append(res.Failed, po.LocalID)
			continue
		}
		res.Committed = append(res.Committed, po.LocalID)
	}

	now := time.Now().UTC()
	c.mu.Lock()
	ts.draining = false
	ts.lastSync = &now
	switch {
	case ts.queue.Len() == 0:
		ts.status = StatusSynced
		ts.lastError = ""
	case len(res.Failed) > 0 || lastErr != nil:
		ts.status = StatusError
		if lastErr != nil {
			ts.lastError = lastErr.Error()
		}
	default:
		ts.status = StatusPending
	}
	res.StatusReport = c.report(tenant, ts)
	c.mu.Unlock()
	return res, nil
}

// DrainAll drains every loaded tenant.
func (c *Coordinator) DrainAll(ctx context.Context) (map[string]DrainResult, error) {
	out := make(map[string]DrainResult)
	var errs []error
	for _, tenant := range c.Tenants() {
		res, err := c.Drain(ctx, tenant)
		if err != nil {
			errs = append(errs, err)
		}
		out[tenant] = res
	}
	return out, errors.Join(errs...)
}

func (c *Coordinator) commit(ctx context.Context, tenant string, q *PendingQueue, po domain.PendingOrder) error {
	q.setState(po.LocalID, domain.PendingCommitting)

	order := po.Order
	order.ID = ""
	order.LocalID = po.LocalID
	order.CreatedOffline = po.CreatedOffline
	order.Status = domain.OrderStatusPending
	if order.Customer != nil {
		ref := *order.Customer
		order.Customer = &ref
	}

	b := c.store.NewBatch(tenant)
	err := repository.StageOrder(ctx, c.store, b, tenant, &order)
	if err == nil {
		err = b.Commit(ctx)
	}
	if err != nil {
		po.Attempts++
		po.State = domain.PendingFailed
		po.LastError = err.Error()
		if uerr := q.Update(ctx, po); uerr != nil && !errors.Is(uerr, domain.ErrQuotaExceeded) {
			c.log.Warn("failed to record sync attempt", zap.String("local_id", po.LocalID), zap.Error(uerr))
		}
		c.log.Warn("pending order not committed",
			zap.String("tenant", tenant),
			zap.String("local_id", po.LocalID),
			zap.Int("attempts", po.Attempts),
			zap.Error(err))
		return err
	}

	if _, err := q.Remove(ctx, po.LocalID); err != nil {
		// the order is committed; a stale local copy would be replayed
		c.log.Error("committed order still stored locally", zap.String("local_id", po.LocalID), zap.Error(err))
	}
	ev := events.New(events.OrderSynced, tenant, order.ID, order.Total)
	ev.LocalID = po.LocalID
	events.Emit(ctx, c.events, c.log, ev)
	return nil
}
