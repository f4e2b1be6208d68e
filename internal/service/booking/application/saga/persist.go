// internal/service/booking/application/saga/persist.go
package saga

import (
	"fmt"
	"time"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
)

// PersistOrderHandler 负责持久化订单并调度支付超时任务。
type PersistOrderHandler struct {
	NextHandler
}

func (h *PersistOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PersistOrder")
	defer span.End()

	order := orderCtx.Order

	// 唯一约束冲突（并发重复投递）在这里浮出来，交给应用层兜底
	if err := orderCtx.Repo.Save(ctx, order); err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	span.AddEvent("Order saved with CREATED_PENDING_PAYMENT state.")

	if orderCtx.Scheduler != nil {
		deadline := time.Now().Add(orderCtx.PaymentWindow)
		if err := orderCtx.Scheduler.SchedulePaymentTimeout(ctx, order.ID, deadline); err != nil {
			// 调度失败不应让主流程失败：订单已经建成，超时检查可以后补
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("orderId", order.ID).
				Msg("failed to schedule payment timeout")
		}
	}

	return h.executeNext(orderCtx)
}
