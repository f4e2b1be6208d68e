// internal/service/booking/port/notification.go
package port

import (
	"context"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// NotificationProducer 把订单的终态变化告知原始渠道。
// 发后不管：投递协议与重试由下游推送服务负责，
// 通知失败绝不回滚订单状态。
type NotificationProducer interface {
	NotifyStateChanged(ctx context.Context, order *domain.Order, state domain.State) error
}
