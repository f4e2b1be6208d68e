// internal/service/booking/interfaces/timeout_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/booking/application"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// TimeoutConsumerAdapter 消费到期的支付超时检查任务。
// 消息由延迟调度服务在 deadline 时刻从延迟主题转投过来。
type TimeoutConsumerAdapter struct {
	reader  *kafka.Reader
	orders  *application.OrderService
	wg      sync.WaitGroup
	stopped bool
}

func NewTimeoutConsumerAdapter(reader *kafka.Reader, orders *application.OrderService) *TimeoutConsumerAdapter {
	return &TimeoutConsumerAdapter{reader: reader, orders: orders}
}

// Start 开始消费。长期运行，直到 ctx 取消或 Stop 被调用。
func (a *TimeoutConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Printf("✅ Payment timeout consumer started for topic '%s'.", a.reader.Config().Topic)
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Printf("🛑 Payment timeout consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read timeout message, retrying")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit timeout message")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *TimeoutConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
}

func (a *TimeoutConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event domain.PaymentTimeoutEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(parentCtx).Error().Err(err).Msg("failed to unmarshal timeout event, skipping")
		return
	}

	ctx := mq.ExtractContext(parentCtx, msg)

	if err := a.orders.ProcessPaymentTimeout(ctx, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("orderId", event.OrderID).
			Msg("failed to process payment timeout")
	}
}
