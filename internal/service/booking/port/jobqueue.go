// internal/service/booking/port/jobqueue.go
package port

import (
	"context"
	"time"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// JobQueue 是资源任务队列的出站端口。
// 渠道回调同步返回之前，确认/取消任务已经投入队列，由编排器异步消化。
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.ResourceJob) error
}

// DelayScheduler 调度支付超时检查的延迟任务。
type DelayScheduler interface {
	SchedulePaymentTimeout(ctx context.Context, orderID string, deadline time.Time) error
}
