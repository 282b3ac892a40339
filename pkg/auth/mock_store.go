package auth

import (
	"sync"
)

// MockStore is an in-memory SnapshotStore for tests
type MockStore struct {
	snapshot *Snapshot
	mu       sync.RWMutex

	// Error injection for testing
	LoadError error
	SaveError error

	saves int
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{}
}

// NewMockStoreWith creates a mock store holding s
func NewMockStoreWith(s *Snapshot) *MockStore {
	m := &MockStore{}
	if s != nil {
		cp := *s
		m.snapshot = &cp
	}
	return m
}

func (m *MockStore) Load() (*Snapshot, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return nil, ErrSnapshotNotFound
	}
	cp := *m.snapshot
	return &cp, nil
}

func (m *MockStore) Save(s *Snapshot) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	if err := validate(s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.snapshot = &cp
	m.saves++
	return nil
}

func (m *MockStore) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot != nil
}

func (m *MockStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	return nil
}

// Saves returns how many times Save succeeded
func (m *MockStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
