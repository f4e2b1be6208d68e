// internal/service/booking/infrastructure/adapter/provider_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wangke168/saas-sub000/internal/pkg/httpclient"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

const providerSuccessCode = "0000"

// EndpointResolver 返回供应商网关的基地址。
// 生产环境由 Nacos 发现实现，测试里用固定地址。
type EndpointResolver func() (string, error)

// StaticEndpoint 返回固定地址的解析器。
func StaticEndpoint(baseURL string) EndpointResolver {
	return func() (string, error) { return baseURL, nil }
}

// ProviderHTTPAdapter 实现了 port.ResourceProvider 接口。
// 错误分类规则在这一层收口：
//   - 网络层错误 / 超时 / 上游 5xx -> 瞬时故障，Retryable=true；
//   - 上游 4xx / 业务码拒绝      -> 永久故障，Retryable=false。
//
// 编排器只认 ProviderError.Retryable，不解析任何响应细节。
type ProviderHTTPAdapter struct {
	client   *httpclient.Client
	resolver EndpointResolver
}

func NewProviderHTTPAdapter(client *httpclient.Client, resolver EndpointResolver) *ProviderHTTPAdapter {
	return &ProviderHTTPAdapter{client: client, resolver: resolver}
}

type providerConfirmRequest struct {
	OrderID  string `json:"orderId"`
	UnitID   string `json:"unitId"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Quantity int    `json:"quantity"`
}

type providerCancelRequest struct {
	OrderID     string `json:"orderId"`
	ProviderRef string `json:"providerRef"`
	Quantity    int    `json:"quantity"`
}

type providerResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	ProviderRef string `json:"providerRef"`
}

func (a *ProviderHTTPAdapter) ConfirmOrder(ctx context.Context, order *domain.Order) (*port.ConfirmResult, error) {
	reqBody, err := json.Marshal(providerConfirmRequest{
		OrderID:  order.ID,
		UnitID:   order.UnitID,
		CheckIn:  order.CheckIn.Format(domain.DateLayout),
		CheckOut: order.CheckOut.Format(domain.DateLayout),
		Quantity: order.RemainingQuantity(),
	})
	if err != nil {
		return nil, err
	}

	parsed, perr := a.call(ctx, "/api/orders/confirm", reqBody)
	if perr != nil {
		return nil, perr
	}
	return &port.ConfirmResult{ProviderRef: parsed.ProviderRef}, nil
}

func (a *ProviderHTTPAdapter) CancelOrder(ctx context.Context, order *domain.Order, qty int) error {
	reqBody, err := json.Marshal(providerCancelRequest{
		OrderID:     order.ID,
		ProviderRef: order.ProviderRef,
		Quantity:    qty,
	})
	if err != nil {
		return err
	}

	_, perr := a.call(ctx, "/api/orders/cancel", reqBody)
	return perr
}

func (a *ProviderHTTPAdapter) call(ctx context.Context, path string, body []byte) (*providerResponse, error) {
	base, err := a.resolver()
	if err != nil {
		return nil, &port.ProviderError{
			Code: "DISCOVERY", Message: err.Error(), Retryable: true,
		}
	}

	resp, err := a.client.PostJSON(ctx, base+path, body)
	if err != nil {
		// 传输层失败：连接拒绝、DNS、context 超时，都值得重试
		return nil, &port.ProviderError{
			Code: "TRANSPORT", Message: err.Error(), Retryable: true,
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &port.ProviderError{
			Code:      fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:   "provider internal error",
			Raw:       string(resp.Body),
			Retryable: true,
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &port.ProviderError{
			Code:      fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:   "provider rejected the request",
			Raw:       string(resp.Body),
			Retryable: false,
		}
	}

	var parsed providerResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		// 响应体不可解析：上游协议坏了，重试也不会好
		return nil, &port.ProviderError{
			Code: "BAD_RESPONSE", Message: err.Error(),
			Raw: string(resp.Body), Retryable: false,
		}
	}
	if parsed.Code != providerSuccessCode {
		return nil, &port.ProviderError{
			Code: parsed.Code, Message: parsed.Message,
			Raw: string(resp.Body), Retryable: false,
		}
	}
	return &parsed, nil
}
