// internal/service/booking/interfaces/job_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/booking/application"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// JobConsumerAdapter 消费资源任务 topic 并驱动编排器。
// 编排器一次执行可能长达几十秒（退避重试），所以用一个有上限的
// 工作池并行消化；不同订单的任务互不等待，同一订单的任务因为
// 分区 key 是订单号而天然串行。
type JobConsumerAdapter struct {
	reader       *kafka.Reader
	orchestrator *application.ResourceJobOrchestrator
	workers      int
	stopped      bool
	done         chan struct{}
}

func NewJobConsumerAdapter(reader *kafka.Reader, orchestrator *application.ResourceJobOrchestrator, workers int) *JobConsumerAdapter {
	if workers <= 0 {
		workers = 1
	}
	return &JobConsumerAdapter{
		reader:       reader,
		orchestrator: orchestrator,
		workers:      workers,
		done:         make(chan struct{}),
	}
}

// Start 开始消费。长期运行，直到 ctx 取消或 Stop 被调用。
func (a *JobConsumerAdapter) Start(ctx context.Context) {
	go func() {
		defer close(a.done)
		logger.Ctx(ctx).Printf("✅ Job consumer started for topic '%s' with %d workers.", a.reader.Config().Topic, a.workers)

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(a.workers)

		for {
			if a.stopped {
				break
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Printf("🛑 Job consumer shutting down.")
					break
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read job message, retrying")
				time.Sleep(time.Second)
				continue
			}

			group.Go(func() error {
				a.processMessage(groupCtx, msg)
				// 处理完成后提交位点；失败的任务已经落了异常单，不重复投递
				if err := a.reader.CommitMessages(ctx, msg); err != nil {
					logger.Ctx(ctx).Error().Err(err).Msg("failed to commit job message")
				}
				return nil
			})
		}
		_ = group.Wait()
	}()
}

// Stop 优雅地停止消费者，等待在途任务跑完。
func (a *JobConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	<-a.done
}

func (a *JobConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	var job domain.ResourceJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		// 解析不了的消息跳过，不要卡死整个分区
		logger.Ctx(parentCtx).Error().Err(err).Msg("failed to unmarshal resource job, skipping")
		return
	}

	ctx := mq.ExtractContext(parentCtx, msg)

	if err := a.orchestrator.Process(ctx, &job); err != nil {
		// 这里的错误只剩本系统自己的存储故障；留在日志里等重投
		logger.Ctx(ctx).Error().Err(err).
			Str("orderId", job.OrderID).Str("operation", string(job.Operation)).
			Msg("resource job processing failed")
	}
}
