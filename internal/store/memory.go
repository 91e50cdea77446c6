package store

import (
	"context"
	"sync"

	"github.com/pscheid92/ordertrack/internal/domain"
)

// MemoryStore is the default, process-local OrderStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.OrderStatusRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.OrderStatusRecord)}
}

func (s *MemoryStore) Save(_ context.Context, record *domain.OrderStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.OrderID] = record.Clone()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, orderID string) (*domain.OrderStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]*domain.OrderStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.OrderStatusRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Clone())
	}
	return out, nil
}
