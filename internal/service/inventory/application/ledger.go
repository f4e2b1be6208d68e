// internal/service/inventory/application/ledger.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/wangke168/saas-sub000/internal/pkg/keylock"
	"github.com/wangke168/saas-sub000/internal/pkg/logger"
	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
	"github.com/wangke168/saas-sub000/internal/service/inventory/port"
)

// Ledger 是库存台账的唯一写入口。
// 所有渠道、入站推送共享同一份 (资源单元, 日期) 容量，
// 这里通过 per-key 锁把同一 key 上的读改写串成线性序。
// 不同 key 之间完全并行，不存在全局互斥点。
type Ledger struct {
	store port.CapacityStore
	locks keylock.Locker
}

func NewLedger(store port.CapacityStore, locks keylock.Locker) *Ledger {
	return &Ledger{store: store, locks: locks}
}

func lockKey(unitID, date string) string {
	return unitID + "|" + date
}

// UpsertBaseline 写入/刷新供应商推送的库存基线。
// 该日期首次出现时建档；已有记录时保留本系统已锁定/已核销的数量，
// 只覆盖 Total/Available/Closed 三个基线字段。
func (l *Ledger) UpsertBaseline(ctx context.Context, unitID, date string, total, available int, closed bool) (*domain.CapacityRecord, error) {
	release, err := l.locks.Acquire(ctx, lockKey(unitID, date))
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := l.store.Get(ctx, unitID, date)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		record = &domain.CapacityRecord{UnitID: unitID, Date: date}
	case err != nil:
		return nil, err
	}

	record.Total = total
	record.Available = clamp(available, 0, total)
	record.Closed = closed
	record.UpdatedAt = time.Now()

	if err := l.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Get 读取一条台账记录。
func (l *Ledger) Get(ctx context.Context, unitID, date string) (*domain.CapacityRecord, error) {
	record, err := l.store.Get(ctx, unitID, date)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// ApplyDelta 是锁定/释放的唯一入口。
// lockedDelta > 0 为锁定：关房拒绝，余量不足拒绝；
// lockedDelta < 0 为释放：永远成功，向下收敛到 0（防御重复释放）。
// 同一 key 上的两次 ApplyDelta 不可能交错越过余量检查。
func (l *Ledger) ApplyDelta(ctx context.Context, unitID, date string, lockedDelta int) (*domain.CapacityRecord, error) {
	release, err := l.locks.Acquire(ctx, lockKey(unitID, date))
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := l.store.Get(ctx, unitID, date)
	if err != nil {
		return nil, err
	}

	if lockedDelta > 0 {
		if record.Closed {
			return nil, domain.ErrRecordClosed
		}
		if record.Available < lockedDelta {
			return nil, domain.ErrInsufficientCapacity
		}
		record.Locked += lockedDelta
		record.Available -= lockedDelta
	} else if lockedDelta < 0 {
		// 释放量超过当前锁定量时只放掉实际持有的部分
		give := -lockedDelta
		if give > record.Locked {
			logger.Ctx(ctx).Warn().
				Str("unit", unitID).Str("date", date).
				Int("delta", lockedDelta).Int("locked", record.Locked).
				Msg("release exceeds locked quantity, clamping")
			give = record.Locked
		}
		record.Locked -= give
		record.Available = clamp(record.Available+give, 0, record.Total)
	}

	record.UpdatedAt = time.Now()
	if err := l.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// CommitSold 在订单确认时把锁定量转为已售量。余量不变：
// 锁定时已经从 Available 扣掉，这里只是改变占用的性质。
func (l *Ledger) CommitSold(ctx context.Context, unitID, date string, qty int) (*domain.CapacityRecord, error) {
	release, err := l.locks.Acquire(ctx, lockKey(unitID, date))
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := l.store.Get(ctx, unitID, date)
	if err != nil {
		return nil, err
	}

	if qty > record.Locked {
		qty = record.Locked
	}
	record.Locked -= qty
	record.Sold += qty
	record.UpdatedAt = time.Now()

	if err := l.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// RefundSold 在已确认订单取消时把已售量退回可售。
// 与 CommitSold 对称；超出已售量的部分收敛到 0。
func (l *Ledger) RefundSold(ctx context.Context, unitID, date string, qty int) (*domain.CapacityRecord, error) {
	release, err := l.locks.Acquire(ctx, lockKey(unitID, date))
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := l.store.Get(ctx, unitID, date)
	if err != nil {
		return nil, err
	}

	if qty > record.Sold {
		qty = record.Sold
	}
	record.Sold -= qty
	record.Available = clamp(record.Available+qty, 0, record.Total)
	record.UpdatedAt = time.Now()

	if err := l.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
