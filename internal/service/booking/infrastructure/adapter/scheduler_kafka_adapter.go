// internal/service/booking/infrastructure/adapter/scheduler_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
// 延迟消息先进延迟主题，由独立的搬运进程在到期时刻转投真实主题；
// 真实主题和到期时间都写在消息 Header 里。
type SchedulerKafkaAdapter struct {
	delayWriter *kafka.Writer
	realTopic   string
}

func NewSchedulerKafkaAdapter(brokers []string, delayTopic, realTopic string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{
		delayWriter: mq.NewKafkaWriter(brokers, delayTopic),
		realTopic:   realTopic,
	}
}

// SchedulePaymentTimeout 在 deadline 时刻投递一条支付超时检查任务。
func (a *SchedulerKafkaAdapter) SchedulePaymentTimeout(ctx context.Context, orderID string, deadline time.Time) error {
	taskEvent := domain.PaymentTimeoutEvent{
		OrderID:      orderID,
		CreationTime: time.Now(),
	}
	taskBytes, err := json.Marshal(taskEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal timeout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(orderID),
		Value: taskBytes,
		Headers: []kafka.Header{
			{Key: "real-topic", Value: []byte(a.realTopic)},
			{Key: "delay-timestamp", Value: []byte(deadline.Format(time.RFC3339))},
		},
	}
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	mq.InjectContext(ctx, &carrier)
	msg.Headers = carrier

	return a.delayWriter.WriteMessages(ctx, msg)
}

// Close 关闭底层的Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}
