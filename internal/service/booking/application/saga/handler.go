// internal/service/booking/application/saga/handler.go
package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	invapp "github.com/wangke168/saas-sub000/internal/service/inventory/application"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// OrderContext 在建单链中传递上下文数据。
// 所有外部依赖都是抽象接口，方便测试替换。
type OrderContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	Reservation   *invapp.ReservationEngine
	Repo          domain.OrderRepository
	Scheduler     port.DelayScheduler
	PaymentWindow time.Duration

	// 补偿栈：后注册的先执行（LIFO）
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 把一个补偿函数推入栈中。
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 执行所有已注册的补偿函数。
func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Printf("INFO: [Order: %s] Executing %d compensation functions.", c.Order.ID, len(c.compensations))
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

// Handler 定义了链中每个节点的接口。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

// NextHandler 嵌入到具体处理器中，减少重复代码。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
