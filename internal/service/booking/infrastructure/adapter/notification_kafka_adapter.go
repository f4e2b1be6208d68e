// internal/service/booking/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/pkg/mq"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// NotificationKafkaAdapter 实现了 port.NotificationProducer 接口。
// 状态变化进通知队列，由下游推送服务按各渠道协议（签名、报文格式）回调渠道；
// 入队前用渠道适配器把内部状态映射成渠道自己的状态码。
type NotificationKafkaAdapter struct {
	writer   *kafka.Writer
	registry *port.AdapterRegistry
}

func NewNotificationKafkaAdapter(brokers []string, topic string, registry *port.AdapterRegistry) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{
		writer:   mq.NewKafkaWriter(brokers, topic),
		registry: registry,
	}
}

func (a *NotificationKafkaAdapter) NotifyStateChanged(ctx context.Context, order *domain.Order, state domain.State) error {
	event := domain.ChannelNotificationEvent{
		OrderID:        order.ID,
		Channel:        order.Channel,
		ChannelOrderID: order.ChannelOrderID,
		State:          state,
		ProviderRef:    order.ProviderRef,
		At:             time.Now(),
	}

	if channelAdapter, err := a.registry.Get(order.Channel); err == nil {
		event.ChannelStatus = channelAdapter.MapState(state)
	} else {
		// 没注册适配器的渠道只带内部状态，推送服务自行兜底
		logger.Ctx(ctx).Warn().Str("channel", order.Channel).
			Msg("no channel adapter registered, notification carries internal state only")
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	// key 用渠道单号：同一个单的通知保序到达推送服务
	return mq.ProduceMessage(ctx, a.writer, []byte(order.ChannelOrderID), eventBytes)
}

// Close 关闭底层的Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
