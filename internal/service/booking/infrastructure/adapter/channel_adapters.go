// internal/service/booking/infrastructure/adapter/channel_adapters.go
package adapter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// channelPayload 是各渠道回调报文的公共骨架。
// 各家字段名大同小异，差异走各自的适配器；验签在 HTTP 中间件层完成。
type channelPayload struct {
	OrderID    string `json:"orderId"`
	Action     string `json:"action"`
	UnitID     string `json:"unitId"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Quantity   int    `json:"quantity"`
	CancelQty  int    `json:"cancelQuantity"`
}

// jsonChannelAdapter 是 JSON 协议渠道的通用实现。
// 渠道之间真正的差异只有两处：状态码表和应答外壳。
type jsonChannelAdapter struct {
	channel    string
	stateCodes map[domain.State]string
	respond    func(ok bool, message string) []byte
}

func (a *jsonChannelAdapter) Channel() string { return a.channel }

func (a *jsonChannelAdapter) ParseRequest(payload []byte) (*port.ChannelRequest, error) {
	var p channelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", a.channel, err)
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("%s payload missing orderId", a.channel)
	}

	req := &port.ChannelRequest{
		Channel:        a.channel,
		ChannelOrderID: p.OrderID,
		Action:         port.ChannelAction(p.Action),
		UnitID:         p.UnitID,
		Quantity:       p.Quantity,
	}
	if p.CancelQty > 0 {
		req.Quantity = p.CancelQty
	}

	if req.Action == port.ActionCreate {
		checkIn, err := time.Parse(domain.DateLayout, p.CheckIn)
		if err != nil {
			return nil, fmt.Errorf("%s payload has bad checkIn %q: %w", a.channel, p.CheckIn, err)
		}
		checkOut, err := time.Parse(domain.DateLayout, p.CheckOut)
		if err != nil {
			return nil, fmt.Errorf("%s payload has bad checkOut %q: %w", a.channel, p.CheckOut, err)
		}
		req.CheckIn, req.CheckOut = checkIn, checkOut
	}
	return req, nil
}

func (a *jsonChannelAdapter) MapState(state domain.State) string {
	if code, ok := a.stateCodes[state]; ok {
		return code
	}
	return string(state)
}

func (a *jsonChannelAdapter) BuildResponse(ok bool, message string) []byte {
	return a.respond(ok, message)
}

// NewCtripAdapter 携程：四位数字状态码，应答带 resultCode。
func NewCtripAdapter() port.ChannelAdapter {
	return &jsonChannelAdapter{
		channel: "ctrip",
		stateCodes: map[domain.State]string{
			domain.StateCreatedPendingPayment: "1001",
			domain.StateConfirming:            "2001",
			domain.StateConfirmed:             "2002",
			domain.StateRejected:              "2003",
			domain.StateCancelRequested:       "3001",
			domain.StateCancelApproved:        "3002",
			domain.StateCancelRejected:        "3003",
			domain.StateVerified:              "4001",
		},
		respond: func(ok bool, message string) []byte {
			code := "0000"
			if !ok {
				code = "0001"
			}
			b, _ := json.Marshal(map[string]string{"resultCode": code, "resultMessage": message})
			return b
		},
	}
}

// NewMeituanAdapter 美团：文本状态，应答带数字 code。
func NewMeituanAdapter() port.ChannelAdapter {
	return &jsonChannelAdapter{
		channel: "meituan",
		stateCodes: map[domain.State]string{
			domain.StateCreatedPendingPayment: "WAIT_PAY",
			domain.StateConfirming:            "CONFIRMING",
			domain.StateConfirmed:             "CONFIRMED",
			domain.StateRejected:              "REFUSED",
			domain.StateCancelRequested:       "CANCELING",
			domain.StateCancelApproved:        "CANCELED",
			domain.StateCancelRejected:        "CANCEL_REFUSED",
			domain.StateVerified:              "USED",
		},
		respond: func(ok bool, message string) []byte {
			code := 200
			if !ok {
				code = 500
			}
			b, _ := json.Marshal(map[string]interface{}{"code": code, "describe": message})
			return b
		},
	}
}

// NewFliggyAdapter 飞猪。
func NewFliggyAdapter() port.ChannelAdapter {
	return &jsonChannelAdapter{
		channel: "fliggy",
		stateCodes: map[domain.State]string{
			domain.StateCreatedPendingPayment: "WAIT_BUYER_PAY",
			domain.StateConfirming:            "SELLER_CONFIRMING",
			domain.StateConfirmed:             "SELLER_CONFIRMED",
			domain.StateRejected:              "SELLER_REFUSED",
			domain.StateCancelRequested:       "REFUND_APPLIED",
			domain.StateCancelApproved:        "REFUND_SUCCESS",
			domain.StateCancelRejected:        "REFUND_REFUSED",
			domain.StateVerified:              "TRADE_FINISHED",
		},
		respond: func(ok bool, message string) []byte {
			b, _ := json.Marshal(map[string]interface{}{"success": ok, "msg": message})
			return b
		},
	}
}

// NewZiwoyouAdapter 自我游。
func NewZiwoyouAdapter() port.ChannelAdapter {
	return &jsonChannelAdapter{
		channel: "ziwoyou",
		stateCodes: map[domain.State]string{
			domain.StateCreatedPendingPayment: "0",
			domain.StateConfirming:            "1",
			domain.StateConfirmed:             "2",
			domain.StateRejected:              "3",
			domain.StateCancelRequested:       "4",
			domain.StateCancelApproved:        "5",
			domain.StateCancelRejected:        "6",
			domain.StateVerified:              "7",
		},
		respond: func(ok bool, message string) []byte {
			state := 1
			if !ok {
				state = 0
			}
			b, _ := json.Marshal(map[string]interface{}{"state": state, "message": message})
			return b
		},
	}
}
