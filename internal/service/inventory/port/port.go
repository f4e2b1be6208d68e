// internal/service/inventory/port/port.go
package port

import (
	"context"

	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
)

// CapacityStore 定义了台账记录的持久化接口，由基础设施层实现。
// 台账保证同一 key 上的调用已经串行化，Store 实现只需要保证自身读写安全。
type CapacityStore interface {
	// Get 读取一条记录；不存在时返回 domain.ErrRecordNotFound。
	Get(ctx context.Context, unitID, date string) (*domain.CapacityRecord, error)

	// Save 以 (unitID, date) 为键插入或覆盖一条记录。
	Save(ctx context.Context, record *domain.CapacityRecord) error
}

// FingerprintCache 用于入站推送去重，纯旁路缓存，绝不参与正确性判断。
// 任何后端故障都必须表现为 Changed（fail-open），宁可多写一次库，
// 不能因为缓存挂了吞掉一次真实变更。
type FingerprintCache interface {
	// CheckAndUpdate 比对 (unitID, date) 上次观察到的值。
	// 值不同（或不存在、或已过期、或后端不可用）时记录新值并返回 true。
	CheckAndUpdate(ctx context.Context, unitID, date, value string) (changed bool)
}
