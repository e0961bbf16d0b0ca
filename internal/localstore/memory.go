package localstore

import (
	"context"
	"sync"

	"fastpartybox/internal/domain"
)

// MemoryKV keeps values in a map and counts key+value bytes against quota.
// A zero quota means unlimited.
type MemoryKV struct {
	mu    sync.Mutex
	data  map[string]string
	used  int
	quota int
}

func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{data: make(map[string]string), quota: quota}
}

var _ KV = (*MemoryKV)(nil)

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.used + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		next -= len(key) + len(old)
	}
	if m.quota > 0 && next > m.quota {
		return &domain.QuotaExceededError{Key: key}
	}
	m.data[key] = value
	m.used = next
	return nil
}

func (m *MemoryKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

// Used reports the bytes currently stored.
func (m *MemoryKV) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
