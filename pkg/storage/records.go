package storage

import (
	"context"
	"sync"

	"ttharvest/pkg/models"
)

// RecordStore is the idempotent sink for acquisition records
type RecordStore interface {
	// IsNew reports whether no record with this url exists yet
	IsNew(ctx context.Context, url string) (bool, error)
	// Insert stores a record; false means the url was already present
	Insert(ctx context.Context, record models.AcquisitionRecord) (bool, error)
	Close() error
}

// MemoryStore keeps records in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.AcquisitionRecord
	order   []string
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.AcquisitionRecord)}
}

func (m *MemoryStore) IsNew(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[url]
	return !ok, nil
}

func (m *MemoryStore) Insert(ctx context.Context, record models.AcquisitionRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.URL]; ok {
		return false, nil
	}
	m.records[record.URL] = record
	m.order = append(m.order, record.URL)
	return true, nil
}

// Records returns the stored records in insertion order
func (m *MemoryStore) Records() []models.AcquisitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AcquisitionRecord, 0, len(m.order))
	for _, url := range m.order {
		out = append(out, m.records[url])
	}
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
