// internal/service/booking/domain/exception.go
package domain

import "time"

// ExceptionStatus 表示异常单的处理状态。
type ExceptionStatus string

const (
	ExceptionPending  ExceptionStatus = "pending"
	ExceptionResolved ExceptionStatus = "resolved"
)

// ExceptionRecord 是编排器放弃之后留给人工的凭据。
// 重试打满或上游明确拒绝时创建；只能由人工核实后关闭，系统不会自动消化。
type ExceptionRecord struct {
	ID          string
	OrderID     string
	Operation   JobOperation
	Reason      string // 分类后的失败原因
	RawResponse string // 上游原始响应，便于排查
	Status      ExceptionStatus
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}
