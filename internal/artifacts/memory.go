package artifacts

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps objects in process memory. Values are copied on the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (m *MemoryStore) Put(ctx context.Context, jobID string, key Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	m.mu.Lock()
	m.data[ObjectName(jobID, key)] = cp
	m.writes++
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jobID string, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	v, ok := m.data[ObjectName(jobID, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(jobID, key, nil)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Exists(ctx context.Context, jobID string, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	_, ok := m.data[ObjectName(jobID, key)]
	m.mu.RUnlock()
	return ok, nil
}

// Writes counts successful Put calls.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Objects lists stored object names in order.
func (m *MemoryStore) Objects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
