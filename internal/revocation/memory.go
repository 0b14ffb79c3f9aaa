package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryKV is an in-process KV for tests and single-node development. Expired
// entries are pruned lazily on access.
type MemoryKV struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]time.Time
}

// NewMemoryKV constructs a MemoryKV; a nil clock defaults to time.Now.
func NewMemoryKV(now func() time.Time) *MemoryKV {
	if now == nil {
		now = time.Now
	}
	return &MemoryKV{
		now:  now,
		data: make(map[string]time.Time),
	}
}

func (m *MemoryKV) Set(_ context.Context, key, _ string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = m.now().Add(ttl)
	return nil
}

func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.data[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(deadline) {
		delete(m.data, key)
		return false, nil
	}
	return true, nil
}
