// internal/service/booking/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/service/booking/application/saga"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
	invapp "github.com/wangke168/saas-sub000/internal/service/inventory/application"
)

// OrderService 驱动订单生命周期状态机。
// 所有渠道适配器都通过它建单/流转，它是幂等键的唯一裁判；
// 同步路径只做锁容量+落库，任何上游调用都交给编排器异步执行。
type OrderService struct {
	repo        domain.OrderRepository
	reservation *invapp.ReservationEngine
	jobs        port.JobQueue
	notifier    port.NotificationProducer
	scheduler   port.DelayScheduler
	tracer      trace.Tracer

	paymentWindow time.Duration
}

func NewOrderService(
	repo domain.OrderRepository,
	reservation *invapp.ReservationEngine,
	jobs port.JobQueue,
	notifier port.NotificationProducer,
	scheduler port.DelayScheduler,
	tracer trace.Tracer,
	paymentWindow time.Duration,
) *OrderService {
	return &OrderService{
		repo:        repo,
		reservation: reservation,
		jobs:        jobs,
		notifier:    notifier,
		scheduler:   scheduler,
		tracer:      tracer,

		paymentWindow: paymentWindow,
	}
}

// CreateOrder 处理渠道的建单回调。
// 幂等：同一个 (channel, channelOrderId) 重复投递时返回已存在的订单，
// 不会重复建单、更不会重复锁容量——渠道在超时场景下一定会重试。
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", req.Channel),
		attribute.String("channel.order_id", req.ChannelOrderID),
	)

	existing, err := s.repo.FindByChannelOrder(ctx, req.Channel, req.ChannelOrderID)
	if err == nil {
		duplicateCreatesTotal.WithLabelValues(req.Channel).Inc()
		span.AddEvent("Duplicate create webhook absorbed.")
		return &CreateOrderResult{Order: existing, Created: false}, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	order, err := domain.NewOrder(
		uuid.New().String(),
		req.Channel, req.ChannelOrderID, req.UnitID,
		req.CheckIn, req.CheckOut, req.Quantity,
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	orderCtx := &saga.OrderContext{
		Ctx:           ctx,
		Order:         order,
		Tracer:        s.tracer,
		Reservation:   s.reservation,
		Repo:          s.repo,
		Scheduler:     s.scheduler,
		PaymentWindow: s.paymentWindow,
	}

	chain := buildCreateChain()
	if err := chain.Handle(orderCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order creation chain failed")
		orderCtx.TriggerCompensation(ctx)

		// 两个并发回调同时过了存在性检查：唯一约束兜底，认第一个赢家
		if errors.Is(err, domain.ErrDuplicateOrder) {
			if winner, ferr := s.repo.FindByChannelOrder(ctx, req.Channel, req.ChannelOrderID); ferr == nil {
				duplicateCreatesTotal.WithLabelValues(req.Channel).Inc()
				return &CreateOrderResult{Order: winner, Created: false}, nil
			}
		}
		return nil, err
	}

	ordersCreatedTotal.WithLabelValues(req.Channel).Inc()
	logger.Ctx(ctx).Info().
		Str("orderId", order.ID).Str("channel", req.Channel).
		Str("channelOrderId", req.ChannelOrderID).
		Msg("order created, capacity locked")
	return &CreateOrderResult{Order: order, Created: true}, nil
}

func buildCreateChain() saga.Handler {
	chain := new(saga.ReserveCapacityHandler)
	chain.SetNext(new(saga.PersistOrderHandler))
	return chain
}

// Order 按内部订单号读取聚合。
func (s *OrderService) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

// OrderByChannel 按幂等键读取聚合，渠道查询回调用。
func (s *OrderService) OrderByChannel(ctx context.Context, channel, channelOrderID string) (*domain.Order, error) {
	return s.repo.FindByChannelOrder(ctx, channel, channelOrderID)
}

// Transition 执行一次状态迁移并触发绑定在目标状态上的副作用。
// 通知永远发生在状态落库之后——绝不在引擎自己还认为 pending 时告诉渠道"已确认"。
func (s *OrderService) Transition(ctx context.Context, orderID string, to domain.State, reason string) (*domain.Order, error) {
	// 取消链路有专门的入口，集中数量校验和容量释放
	switch to {
	case domain.StateCancelApproved:
		return s.CompleteCancellation(ctx, orderID, reason)
	case domain.StateConfirmed:
		return s.CompleteConfirmation(ctx, orderID, "")
	case domain.StateCancelRequested:
		return nil, fmt.Errorf("use RequestCancel to enter %s", to)
	}

	ctx, span := s.tracer.Start(ctx, "app.Transition")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.Apply(to, reason); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if to == domain.StateCancelRejected {
		order.RejectCancel()
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}
	span.AddEvent(fmt.Sprintf("Order transitioned to %s.", to))

	switch to {
	case domain.StateConfirming:
		job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm, EnqueuedAt: time.Now()}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			// 订单会停在 CONFIRMING：记严重错误，等补偿任务或人工重推
			logger.Ctx(ctx).Error().Err(err).Str("orderId", order.ID).
				Msg("CRITICAL: failed to enqueue confirm job")
		}
	case domain.StateRejected:
		// 确认被拒的单不再可售，持有的容量放掉
		s.mustRelease(ctx, order, order.RemainingQuantity())
		s.notify(ctx, order, to)
	case domain.StateCancelRejected, domain.StateVerified:
		s.notify(ctx, order, to)
	}

	return order, nil
}

// RequestCancel 处理渠道的取消申请。qty 不得超过订单剩余数量。
// 已确认的订单需要供应商点头，任务进编排器；
// 未确认的订单上游无感知，本地直接批准并释放容量。
func (s *OrderService) RequestCancel(ctx context.Context, orderID string, qty int, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.RequestCancel")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// 渠道会重投取消回调：已整单取消的订单直接回成功，不再走状态机
	if order.State == domain.StateCancelApproved && order.RemainingQuantity() == 0 {
		span.AddEvent("Duplicate cancel webhook absorbed, order already cancelled.")
		return order, nil
	}

	wasConfirmed := order.State == domain.StateConfirmed
	if err := order.RequestCancel(qty, reason); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}

	if wasConfirmed {
		job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobCancel, Quantity: qty, EnqueuedAt: time.Now()}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("orderId", order.ID).
				Msg("CRITICAL: failed to enqueue cancel job")
		}
		return order, nil
	}
	return s.CompleteCancellation(ctx, orderID, "pre-confirmation cancel auto-approved")
}

// CompleteConfirmation 在供应商确认成功后把订单推进到 CONFIRMED。
// 状态落库 → 锁定量核销为已售 → 通知渠道，顺序不可调换。
// 订单已不在 CONFIRMING 时幂等跳过（重复任务）。
func (s *OrderService) CompleteConfirmation(ctx context.Context, orderID, providerRef string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CompleteConfirmation")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != domain.StateConfirming {
		span.AddEvent("Order no longer confirming, skip.")
		return order, nil
	}

	if err := order.Apply(domain.StateConfirmed, "provider confirmed"); err != nil {
		return nil, err
	}
	order.MarkConfirmed(providerRef)
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}

	if err := s.reservation.Commit(ctx, order.ID, order.UnitID, order.Nights(), order.RemainingQuantity()); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("orderId", order.ID).
			Msg("CRITICAL: failed to commit hold after confirmation")
	}
	s.notify(ctx, order, domain.StateConfirmed)
	return order, nil
}

// CompleteCancellation 在取消获批后释放容量并推进状态。
// 容量只在进入 CANCEL_APPROVED 的这一刻释放一次；
// 部分取消后订单回到取消前的状态，继续履约剩余数量。
func (s *OrderService) CompleteCancellation(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.CompleteCancellation")
	defer span.End()

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.State != domain.StateCancelRequested {
		span.AddEvent("Order not awaiting cancellation, skip.")
		return order, nil
	}

	fromConfirmed := order.PriorState == domain.StateConfirmed
	if err := order.Apply(domain.StateCancelApproved, reason); err != nil {
		return nil, err
	}
	qty := order.ApproveCancel(reason)
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, err
	}

	// 确认前释放的是锁定量，确认后退回的是已售量
	if fromConfirmed {
		s.reservation.Refund(ctx, order.ID, order.UnitID, order.Nights(), qty)
	} else {
		s.mustRelease(ctx, order, qty)
	}
	s.notify(ctx, order, domain.StateCancelApproved)

	if order.RemainingQuantity() > 0 {
		// 部分取消：回到取消前的状态，剩余数量继续有效
		if err := order.Apply(order.PriorState, "partial cancellation, resume"); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ProcessPaymentTimeout 处理到期的支付超时检查任务。
// 仍未支付的订单整单取消；已支付/已取消的订单直接忽略。
func (s *OrderService) ProcessPaymentTimeout(ctx context.Context, event *domain.PaymentTimeoutEvent) error {
	ctx, span := s.tracer.Start(ctx, "app.ProcessPaymentTimeout", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	order, err := s.repo.FindByID(ctx, event.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if order.State != domain.StateCreatedPendingPayment {
		span.AddEvent("Order already progressed, timeout check is a no-op.")
		return nil
	}

	logger.Ctx(ctx).Warn().Str("orderId", order.ID).
		Msg("order not paid within the time limit, cancelling and releasing capacity")
	_, err = s.RequestCancel(ctx, order.ID, order.RemainingQuantity(), "payment timeout")
	return err
}

func (s *OrderService) mustRelease(ctx context.Context, order *domain.Order, qty int) {
	if err := s.reservation.Release(ctx, order.ID, order.UnitID, order.Nights(), qty); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("orderId", order.ID).
			Msg("CRITICAL: failed to release hold")
	}
}

// notify 发后不管。通知失败由下游推送服务自己重试，绝不回滚订单状态。
func (s *OrderService) notify(ctx context.Context, order *domain.Order, state domain.State) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStateChanged(ctx, order, state); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("orderId", order.ID).Str("state", string(state)).
			Msg("channel notification failed, push service will retry")
	}
}
