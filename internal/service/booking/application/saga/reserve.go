// internal/service/booking/application/saga/reserve.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReserveCapacityHandler 负责容量锁定步骤。
// 整个日期范围要么全锁成功，要么一间都不占——引擎内部已保证回滚。
type ReserveCapacityHandler struct {
	NextHandler
}

func (h *ReserveCapacityHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveCapacity")
	defer span.End()

	order := orderCtx.Order
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("unit.id", order.UnitID),
		attribute.Int("quantity", order.Quantity),
	)

	if err := orderCtx.Reservation.Lock(ctx, order.ID, order.UnitID, order.Nights(), order.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Capacity reservation failed")
		return err
	}

	// 后续步骤失败时把这次锁定整体放掉
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseCapacity")
		defer compSpan.End()
		if err := orderCtx.Reservation.Release(compCtx, order.ID, order.UnitID, order.Nights(), order.Quantity); err != nil {
			compSpan.RecordError(err)
		}
	})

	span.AddEvent("All nights reserved successfully")
	return h.executeNext(orderCtx)
}
