// internal/service/inventory/domain/record.go
package domain

import (
	"time"
)

// DateLayout 是库存台账使用的日历日格式。
// 台账按 (资源单元, 日历日) 记账，不关心具体时刻。
const DateLayout = "2006-01-02"

// CapacityRecord 是库存台账的最小记账单位。
// 不变式: 0 <= Available <= Total，且 Available = Total - Locked - Sold。
// Closed=true 时任何新的锁定都会被拒绝，但释放永远允许（便于排空）。
type CapacityRecord struct {
	UnitID    string
	Date      string // DateLayout 格式
	Total     int
	Available int
	Locked    int
	Sold      int
	Closed    bool
	UpdatedAt time.Time
}

// Clone 返回记录的副本，避免调用方拿到内部指针后绕过台账改数。
func (r *CapacityRecord) Clone() *CapacityRecord {
	cp := *r
	return &cp
}

// DateRange 表示一段连续的入住日期，按酒店惯例 End 为离店日（不含当晚）。
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Nights 按升序展开范围内的每一晚。锁定顺序必须固定，
// 否则两个交叉范围的并发锁定可能互相死锁或部分回滚不全。
func (d DateRange) Nights() []string {
	var nights []string
	for t := d.Start; t.Before(d.End); t = t.AddDate(0, 0, 1) {
		nights = append(nights, t.Format(DateLayout))
	}
	return nights
}
