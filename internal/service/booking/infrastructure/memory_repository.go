// internal/service/booking/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// MemoryOrderRepository 是订单仓储的内存实现，开发和测试用。
// 和 MySQL 实现一样在幂等键上做唯一性裁决。
type MemoryOrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order // 内部订单号 -> 聚合
	byChanID map[string]string        // channel|channelOrderId -> 内部订单号
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:   make(map[string]*domain.Order),
		byChanID: make(map[string]string),
	}
}

func channelKey(channel, channelOrderID string) string {
	return channel + "|" + channelOrderID
}

func (r *MemoryOrderRepository) Save(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := channelKey(order.Channel, order.ChannelOrderID)
	if ownerID, ok := r.byChanID[key]; ok && ownerID != order.ID {
		return domain.ErrDuplicateOrder
	}

	copied := *order
	copied.Cancellations = append([]domain.Cancellation(nil), order.Cancellations...)
	copied.Transitions = append([]domain.Transition(nil), order.Transitions...)
	r.orders[order.ID] = &copied
	r.byChanID[key] = order.ID
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *MemoryOrderRepository) FindByChannelOrder(_ context.Context, channel, channelOrderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byChanID[channelKey(channel, channelOrderID)]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *r.orders[id]
	return &copied, nil
}

// MemoryExceptionRepository 是异常单仓储的内存实现。
type MemoryExceptionRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.ExceptionRecord
}

func NewMemoryExceptionRepository() *MemoryExceptionRepository {
	return &MemoryExceptionRepository{records: make(map[string]*domain.ExceptionRecord)}
}

func (r *MemoryExceptionRepository) Save(_ context.Context, record *domain.ExceptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *MemoryExceptionRepository) ListPending(_ context.Context) ([]*domain.ExceptionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []*domain.ExceptionRecord
	for _, record := range r.records {
		if record.Status == domain.ExceptionPending {
			copied := *record
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}
