// internal/service/booking/port/provider.go
package port

import (
	"context"
	"fmt"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
)

// ConfirmResult 是供应商确认成功后的回执。
type ConfirmResult struct {
	ProviderRef string
}

// ResourceProvider 是上游资源方（景区/酒店自有系统）的出站端口。
// 实现方负责把传输错误和业务拒绝都折叠成 *ProviderError，
// 可重试性由实现层显式标注，绝不靠关键字匹配错误文案来猜。
type ResourceProvider interface {
	ConfirmOrder(ctx context.Context, order *domain.Order) (*ConfirmResult, error)
	CancelOrder(ctx context.Context, order *domain.Order, qty int) error
}

// ProviderError 是分类后的上游调用错误。
// Retryable=true: 网络层错误、超时、上游 5xx —— 指数退避重试；
// Retryable=false: 校验失败、业务拒绝、4xx —— 不重试，直接升级异常单。
type ProviderError struct {
	Code      string
	Message   string
	Raw       string // 上游原始响应体，写入异常单用
	Retryable bool
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s failure [%s]: %s", kind, e.Code, e.Message)
}
