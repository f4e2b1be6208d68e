// internal/service/booking/infrastructure/adapter/job_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// JobKafkaAdapter 实现了 port.JobQueue 接口。
// 以订单号为 key：同一个订单的确认/取消任务落同一分区，
// 单分区内有序消费，天然避免确认和取消乱序执行。
type JobKafkaAdapter struct {
	writer *kafka.Writer
}

func NewJobKafkaAdapter(brokers []string, topic string) *JobKafkaAdapter {
	return &JobKafkaAdapter{writer: mq.NewKafkaWriter(brokers, topic)}
}

func (a *JobKafkaAdapter) Enqueue(ctx context.Context, job *domain.ResourceJob) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal resource job: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(job.OrderID), jobBytes)
}

// Close 关闭底层的Kafka writer。
func (a *JobKafkaAdapter) Close() error {
	return a.writer.Close()
}
