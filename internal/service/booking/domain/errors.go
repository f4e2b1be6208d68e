// internal/service/booking/domain/errors.go
package domain

import "errors"

var (
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateOrder 表示 (channel, channelOrderId) 已存在。
	// 并发建单竞争时由仓储的唯一约束兜底，应用层捕获后返回已存在的订单。
	ErrDuplicateOrder = errors.New("duplicate channel order")
)
