package offline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/localstore"
)

// PendingQueue is one tenant's append-only list of uncommitted orders,
// keyed by local id and written through to local storage on every mutation.
// A failed write never drops the in-memory entry.
type PendingQueue struct {
	mu      sync.Mutex
	kv      localstore.KV
	tenant  string
	entries []domain.PendingOrder
	log     *zap.Logger
}

// LoadPendingQueue restores the tenant's queue. The returned queue is usable
// even when err is set: undecodable data starts an empty queue.
func LoadPendingQueue(ctx context.Context, kv localstore.KV, tenant string, log *zap.Logger) (*PendingQueue, error) {
	q := &PendingQueue{kv: kv, tenant: tenant, log: log, entries: []domain.PendingOrder{}}
	var stored []domain.PendingOrder
	if _, err := loadJSON(ctx, kv, PendingKey(tenant), &stored); err != nil {
		return q, err
	}
	if stored != nil {
		q.entries = stored
	}
	return q, nil
}

func (q *PendingQueue) Tenant() string { return q.tenant }

// NewLocalID returns a time-based client id.
func NewLocalID(now time.Time) string {
	return strconv.FormatInt(now.UnixNano(), 10)
}

// Add appends po. A duplicate local id is rejected.
func (q *PendingQueue) Add(ctx context.Context, po domain.PendingOrder) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if po.LocalID == "" {
		return domain.NewValidationError("local_id", "required")
	}
	if q.indexOf(po.LocalID) >= 0 {
		return domain.NewValidationError("local_id", "order "+po.LocalID+" already queued")
	}
	if po.State == "" {
		po.State = domain.PendingQueued
	}
	q.entries = append(q.entries, po)
	return q.persist(ctx)
}

// Remove drops the entry with localID; removed is false when it was not queued.
func (q *PendingQueue) Remove(ctx context.Context, localID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(localID)
	if i < 0 {
		return false, nil
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true, q.persist(ctx)
}

// Update replaces the entry with the same local id.
func (q *PendingQueue) Update(ctx context.Context, po domain.PendingOrder) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(po.LocalID)
	if i < 0 {
		return domain.NewNotFoundError("pending order", po.LocalID)
	}
	q.entries[i] = po
	return q.persist(ctx)
}

// setState changes the in-memory state only; committing is never persisted.
func (q *PendingQueue) setState(localID string, state domain.PendingState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(localID); i >= 0 {
		q.entries[i].State = state
	}
}

func (q *PendingQueue) Get(localID string) (domain.PendingOrder, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(localID); i >= 0 {
		return q.entries[i], true
	}
	return domain.PendingOrder{}, false
}

func (q *PendingQueue) Contains(localID string) bool {
	_, ok := q.Get(localID)
	return ok
}

// List returns a copy in insertion order.
func (q *PendingQueue) List() []domain.PendingOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.PendingOrder(nil), q.entries...)
}

func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Persist rewrites the whole queue to local storage.
func (q *PendingQueue) Persist(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persist(ctx)
}

// must be called with mu held
func (q *PendingQueue) indexOf(localID string) int {
	for i, e := range q.entries {
		if e.LocalID == localID {
			return i
		}
	}
	return -1
}

// must be called with mu held
func (q *PendingQueue) persist(ctx context.Context) error {
	compact := make([]domain.PendingOrder, len(q.entries))
	for i, e := range q.entries {
		e.Order = e.Order.WithoutImages()
		compact[i] = e
	}
	err := persistJSON(ctx, q.kv, PendingKey(q.tenant), q.entries, compact, CatalogKey(q.tenant))
	if err != nil {
		q.log.Warn("pending orders not persisted",
			zap.String("tenant", q.tenant),
			zap.Int("queued", len(q.entries)),
			zap.Error(err))
	}
	return err
}
