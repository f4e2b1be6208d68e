// internal/service/booking/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单聚合的持久化接口。
// 位于领域层，由基础设施层实现。
type OrderRepository interface {
	// Save 保存一个订单聚合（创建或更新）。
	// 创建时 (Channel, ChannelOrderID) 冲突必须返回 ErrDuplicateOrder。
	Save(ctx context.Context, order *Order) error

	// FindByID 根据内部订单号查找；不存在时返回 ErrOrderNotFound。
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindByChannelOrder 根据幂等键查找；不存在时返回 ErrOrderNotFound。
	FindByChannelOrder(ctx context.Context, channel, channelOrderID string) (*Order, error)
}

// ExceptionRepository 定义了异常单的持久化接口。
type ExceptionRepository interface {
	Save(ctx context.Context, record *ExceptionRecord) error
	ListPending(ctx context.Context) ([]*ExceptionRecord, error)
}
