// internal/service/inventory/interfaces/feed_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/inventory/application"
)

// FeedConsumerAdapter 是一个驱动适配器：监听供应商库存推送 topic，
// 驱动 FeedIngestor。供应商推送频率很高，去重发生在应用层。
type FeedConsumerAdapter struct {
	reader   *kafka.Reader
	ingestor *application.FeedIngestor
	wg       sync.WaitGroup
	stopped  bool
}

func NewFeedConsumerAdapter(reader *kafka.Reader, ingestor *application.FeedIngestor) *FeedConsumerAdapter {
	return &FeedConsumerAdapter{reader: reader, ingestor: ingestor}
}

// Start 开始消费。长期运行，直到 ctx 取消或 Stop 被调用。
func (a *FeedConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Printf("✅ Feed consumer started for topic '%s'.", a.reader.Config().Topic)
		for {
			if a.stopped {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，以便自己控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Printf("🛑 Feed consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read feed message, retrying")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit feed message")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *FeedConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
}

func (a *FeedConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var push application.CapacityPush
	if err := json.Unmarshal(msg.Value, &push); err != nil {
		// 解析不了的消息跳过，不要卡死整个分区
		logger.Ctx(parentCtx).Error().Err(err).Msg("failed to unmarshal capacity push, skipping")
		return
	}

	ctx := mq.ExtractContext(parentCtx, msg)

	changed, err := a.ingestor.HandleCapacityPush(ctx, &push)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("unit", push.UnitID).Str("date", push.Date).
			Msg("failed to handle capacity push")
		return
	}
	if changed {
		// 真实变更才需要向渠道重推；出站重推由独立的同步服务消费此信号
		logger.Ctx(ctx).Info().Str("unit", push.UnitID).Str("date", push.Date).Msg("capacity changed, resync scheduled")
	}
}
