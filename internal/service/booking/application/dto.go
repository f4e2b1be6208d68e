// internal/service/booking/application/dto.go
package application

import (
	"time"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// CreateOrderRequest 是渠道适配器解析报文之后交给应用层的建单请求。
type CreateOrderRequest struct {
	Channel        string
	ChannelOrderID string
	UnitID         string
	CheckIn        time.Time
	CheckOut       time.Time
	Quantity       int
}

// FromChannelRequest 把统一的渠道请求转成建单请求。
func FromChannelRequest(req *port.ChannelRequest) *CreateOrderRequest {
	return &CreateOrderRequest{
		Channel:        req.Channel,
		ChannelOrderID: req.ChannelOrderID,
		UnitID:         req.UnitID,
		CheckIn:        req.CheckIn,
		CheckOut:       req.CheckOut,
		Quantity:       req.Quantity,
	}
}

// CreateOrderResult 是建单的同步应答。
// Created=false 表示命中幂等：同一个渠道单号的重复投递，返回首次创建的订单。
type CreateOrderResult struct {
	Order   *domain.Order
	Created bool
}
