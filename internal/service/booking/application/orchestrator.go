// internal/service/booking/application/orchestrator.go
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
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// OrchestratorConfig 控制对供应商的调用节奏。
// 退避序列短于尝试次数时，末项对后续尝试复用。
type OrchestratorConfig struct {
	MaxAttempts int
	CallTimeout time.Duration
	Backoff     []time.Duration
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxAttempts: 4,
		CallTimeout: 10 * time.Second,
		Backoff:     []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
	}
}

// ResourceJobOrchestrator 消费资源任务并驱动对供应商的确认/取消调用。
// 分类重试：网络/超时/5xx 是瞬时故障，按退避序列重试到次数上限；
// 4xx 和业务拒绝是永久故障，立即生成异常记录转人工，绝不重试。
// 无论哪种失败耗尽，订单都停在当前状态等人处理——编排器自己不改判。
type ResourceJobOrchestrator struct {
	orders     *OrderService
	provider   port.ResourceProvider
	exceptions domain.ExceptionRepository
	tracer     trace.Tracer
	cfg        OrchestratorConfig

	// 测试注入点，默认真实等待
	sleep func(ctx context.Context, d time.Duration) error
}

func NewResourceJobOrchestrator(
	orders *OrderService,
	provider port.ResourceProvider,
	exceptions domain.ExceptionRepository,
	tracer trace.Tracer,
	cfg OrchestratorConfig,
) *ResourceJobOrchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &ResourceJobOrchestrator{
		orders:     orders,
		provider:   provider,
		exceptions: exceptions,
		tracer:     tracer,
		cfg:        cfg,
		sleep:      sleepCtx,
	}
}

// Process 执行一条资源任务。返回非 nil 仅代表本系统内部故障（存储不可用），
// 消费侧可以重投；供应商侧的失败在这里就地消化，不会向上冒泡。
func (o *ResourceJobOrchestrator) Process(ctx context.Context, job *domain.ResourceJob) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Process", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", job.OrderID),
		attribute.String("job.operation", string(job.Operation)),
	)

	order, err := o.orders.Order(ctx, job.OrderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		logger.Ctx(ctx).Warn().Str("orderId", job.OrderID).Msg("job references unknown order, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	// 执行前的状态守卫：状态已经走掉说明是重复投递的任务，幂等放弃
	switch job.Operation {
	case domain.JobConfirm:
		if order.State != domain.StateConfirming {
			span.AddEvent("Order no longer confirming, job dropped.")
			return nil
		}
	case domain.JobCancel:
		if order.State != domain.StateCancelRequested {
			span.AddEvent("Order no longer awaiting cancellation, job dropped.")
			return nil
		}
	default:
		return fmt.Errorf("unknown job operation %q", job.Operation)
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		providerRef, callErr := o.callProvider(ctx, job, order)

		if callErr == nil {
			providerAttemptsTotal.WithLabelValues(string(job.Operation), "success").Inc()
			switch job.Operation {
			case domain.JobConfirm:
				_, err = o.orders.CompleteConfirmation(ctx, order.ID, providerRef)
			case domain.JobCancel:
				_, err = o.orders.CompleteCancellation(ctx, order.ID, "provider approved cancellation")
			}
			return err
		}

		if !isTransient(callErr) {
			providerAttemptsTotal.WithLabelValues(string(job.Operation), "permanent").Inc()
			span.SetStatus(codes.Error, "Provider rejected the request")
			return o.escalate(ctx, job, callErr, "permanent_failure")
		}

		providerAttemptsTotal.WithLabelValues(string(job.Operation), "transient").Inc()
		lastErr = callErr
		logger.Ctx(ctx).Warn().Err(callErr).
			Str("orderId", order.ID).Int("attempt", attempt).
			Msg("provider call failed transiently")

		if attempt < o.cfg.MaxAttempts {
			if err := o.sleep(ctx, o.backoffFor(attempt)); err != nil {
				return err
			}
		}
	}

	span.SetStatus(codes.Error, "Provider retries exhausted")
	return o.escalate(ctx, job, lastErr, "retries_exhausted")
}

func (o *ResourceJobOrchestrator) callProvider(ctx context.Context, job *domain.ResourceJob, order *domain.Order) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	switch job.Operation {
	case domain.JobConfirm:
		result, err := o.provider.ConfirmOrder(callCtx, order)
		if err != nil {
			return "", err
		}
		return result.ProviderRef, nil
	case domain.JobCancel:
		return "", o.provider.CancelOrder(callCtx, order, job.Quantity)
	}
	return "", fmt.Errorf("unknown job operation %q", job.Operation)
}

// escalate 生成异常记录转人工。订单保持当前状态，
// 人工裁决后通过管理接口走 Transition 收尾。
func (o *ResourceJobOrchestrator) escalate(ctx context.Context, job *domain.ResourceJob, cause error, reason string) error {
	record := &domain.ExceptionRecord{
		ID:        uuid.New().String(),
		OrderID:   job.OrderID,
		Operation: job.Operation,
		Reason:    reason,
		Status:    domain.ExceptionPending,
		CreatedAt: time.Now(),
	}
	var pe *port.ProviderError
	if errors.As(cause, &pe) && pe.Raw != "" {
		record.RawResponse = pe.Raw
	} else if cause != nil {
		record.RawResponse = cause.Error()
	}

	if err := o.exceptions.Save(ctx, record); err != nil {
		return fmt.Errorf("save exception record: %w", err)
	}
	exceptionsTotal.WithLabelValues(string(job.Operation), reason).Inc()
	logger.Ctx(ctx).Error().Err(cause).
		Str("orderId", job.OrderID).Str("operation", string(job.Operation)).
		Str("reason", reason).
		Msg("🛑 job escalated to human review")
	return nil
}

func (o *ResourceJobOrchestrator) backoffFor(attempt int) time.Duration {
	if len(o.cfg.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(o.cfg.Backoff) {
		idx = len(o.cfg.Backoff) - 1
	}
	return o.cfg.Backoff[idx]
}

// isTransient 判定一次供应商调用失败是否值得重试。
// 适配器对可重试性最有发言权（它能看到 HTTP 状态码和业务码）；
// 超时按瞬时故障处理；来路不明的错误一律按永久故障转人工，宁可多打扰值班。
func isTransient(err error) bool {
	var pe *port.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
