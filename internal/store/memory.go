package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store. It keeps the same ordering and
// transactional guarantees as SQLiteStore and is used by tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	order  []string
	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, errClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	return m.setLocked(key, value)
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.removeLocked(key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	var keys []string
	for _, k := range m.order {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Update stages writes made through the view and applies them only when fn
// returns nil.
func (m *MemoryStore) Update(ctx context.Context, fn func(kv KV) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}

	view := &stagedKV{base: m, writes: make(map[string]*string)}
	if err := fn(view); err != nil {
		return err
	}

	for _, k := range view.order {
		if v := view.writes[k]; v != nil {
			if err := m.setLocked(k, *v); err != nil {
				return err
			}
		} else {
			m.removeLocked(k)
		}
	}
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (*StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &StoreStats{KeyCount: int64(len(m.values))}, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) setLocked(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) removeLocked(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// stagedKV records writes on top of a locked MemoryStore. A nil entry in
// writes marks a removal.
type stagedKV struct {
	base   *MemoryStore
	writes map[string]*string
	order  []string
}

func (s *stagedKV) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := s.writes[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	v, ok := s.base.values[key]
	return v, ok, nil
}

func (s *stagedKV) Set(_ context.Context, key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	s.record(key, &value)
	return nil
}

func (s *stagedKV) Remove(_ context.Context, key string) error {
	s.record(key, nil)
	return nil
}

func (s *stagedKV) record(key string, v *string) {
	if _, ok := s.writes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.writes[key] = v
}
