package cookies

import "sync"

// MemoryStore is an in-process Store for tests, with error injection
type MemoryStore struct {
	mu    sync.Mutex
	set   Set
	saves int

	LoadError error
	SaveError error
}

// NewMemoryStore creates a store preloaded with initial
func NewMemoryStore(initial Set) *MemoryStore {
	return &MemoryStore{set: append(Set{}, initial...)}
}

func (m *MemoryStore) Load() (Set, error) {
	if m.LoadError != nil {
		return nil, ioError("load", m.LoadError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(Set{}, m.set...), nil
}

func (m *MemoryStore) Save(set Set) error {
	if m.SaveError != nil {
		return ioError("save", m.SaveError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = append(Set{}, set...)
	m.saves++
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = Set{}
	return nil
}

func (m *MemoryStore) Describe() string {
	return "memory"
}

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
