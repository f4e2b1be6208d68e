// internal/service/booking/domain/events.go
package domain

import "time"

// JobOperation 是资源任务的操作类型。
type JobOperation string

const (
	JobConfirm JobOperation = "confirm"
	JobCancel  JobOperation = "cancel"
)

// ResourceJob 是投递给编排器的一条异步任务。
// 渠道回调只做同步的锁定/建单，所有上游调用都经由这里解耦。
type ResourceJob struct {
	OrderID    string       `json:"orderId"`
	Operation  JobOperation `json:"operation"`
	Quantity   int          `json:"quantity,omitempty"` // 取消数量，confirm 时为 0
	EnqueuedAt time.Time    `json:"enqueuedAt"`
}

// ChannelNotificationEvent 是发往渠道通知队列的消息。
// 渠道协议细节（签名、报文）由下游的推送服务处理。
type ChannelNotificationEvent struct {
	OrderID        string    `json:"orderId"`
	Channel        string    `json:"channel"`
	ChannelOrderID string    `json:"channelOrderId"`
	State          State     `json:"state"`
	ChannelStatus  string    `json:"channelStatus"` // 渠道侧的状态码，由适配器映射
	ProviderRef    string    `json:"providerRef,omitempty"`
	At             time.Time `json:"at"`
}

// PaymentTimeoutEvent 是支付超时检查的延迟任务消息。
type PaymentTimeoutEvent struct {
	OrderID      string    `json:"orderId"`
	CreationTime time.Time `json:"creationTime"`
}
