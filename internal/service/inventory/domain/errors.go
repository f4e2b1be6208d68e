// internal/service/inventory/domain/errors.go
package domain

import "errors"

var (
	// ErrInsufficientCapacity 表示锁定数量超出当日可售余量。业务错误，同步返回，不自动重试。
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrRecordClosed 表示该日期已关房，拒绝新的锁定。
	ErrRecordClosed = errors.New("capacity record closed")

	// ErrRecordNotFound 表示该 (资源单元, 日期) 还没有任何库存基线。
	ErrRecordNotFound = errors.New("capacity record not found")
)
