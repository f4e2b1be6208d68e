// internal/service/inventory/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sync"

	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
)

// MemoryCapacityStore 是 port.CapacityStore 的进程内实现，测试和本地联调用。
// 并发安全由自身的读写锁保证，线性化语义由台账的 per-key 锁保证。
type MemoryCapacityStore struct {
	mu      sync.RWMutex
	records map[string]*domain.CapacityRecord
}

func NewMemoryCapacityStore() *MemoryCapacityStore {
	return &MemoryCapacityStore{records: make(map[string]*domain.CapacityRecord)}
}

func storeKey(unitID, date string) string {
	return unitID + "|" + date
}

func (s *MemoryCapacityStore) Get(ctx context.Context, unitID, date string) (*domain.CapacityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[storeKey(unitID, date)]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryCapacityStore) Save(ctx context.Context, record *domain.CapacityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[storeKey(record.UnitID, record.Date)] = record.Clone()
	return nil
}
