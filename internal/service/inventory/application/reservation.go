// internal/service/inventory/application/reservation.go
package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/wangke168/saas-sub000/internal/pkg/logger"
)

// PartialFailureError 表示多晚锁定在某一晚失败。
// 返回给调用方之前，本次调用已锁定的日期已经全部回滚——
// 三晚的订单只锁到两晚是卖不出去的，要么全有要么全无。
type PartialFailureError struct {
	Date      string // 第一个失败的日期
	Shortfall int    // 缺口数量
	Cause     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("capacity lock failed at %s (shortfall %d): %v", e.Date, e.Shortfall, e.Cause)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }

// ReservationEngine 以整个日期范围为一个原子单元锁定/释放容量。
// 它自身不做去重：同一 orderRef 重复 Lock 由订单状态机在调用前拦截。
type ReservationEngine struct {
	ledger *Ledger
}

func NewReservationEngine(ledger *Ledger) *ReservationEngine {
	return &ReservationEngine{ledger: ledger}
}

// Lock 按升序逐晚锁定 qty 间。任何一晚失败时，
// 对已锁定的晚应用补偿性负增量后返回 *PartialFailureError。
// 重试策略属于渠道侧调用方，这里绝不内部重试。
func (e *ReservationEngine) Lock(ctx context.Context, orderRef, unitID string, dates []string, qty int) error {
	ordered := ascending(dates)

	var lockedSoFar []string
	for _, date := range ordered {
		record, err := e.ledger.ApplyDelta(ctx, unitID, date, qty)
		if err != nil {
			shortfall := qty
			if record == nil {
				// 失败时读一次现场，让调用方知道缺口有多大
				if current, getErr := e.ledger.Get(ctx, unitID, date); getErr == nil {
					shortfall = qty - current.Available
				}
			}
			e.rollback(ctx, orderRef, unitID, lockedSoFar, qty)
			return &PartialFailureError{Date: date, Shortfall: shortfall, Cause: err}
		}
		lockedSoFar = append(lockedSoFar, date)
	}

	logger.Ctx(ctx).Info().
		Str("orderRef", orderRef).Str("unit", unitID).
		Int("qty", qty).Int("nights", len(ordered)).
		Msg("capacity locked")
	return nil
}

// Release 无条件对每一晚应用负增量。幂等：渠道会重试取消回调，
// 释放一个已释放的持有是 no-op 成功，永远不是错误。
func (e *ReservationEngine) Release(ctx context.Context, orderRef, unitID string, dates []string, qty int) error {
	for _, date := range ascending(dates) {
		if _, err := e.ledger.ApplyDelta(ctx, unitID, date, -qty); err != nil {
			// 记录没建档说明从未锁定过，释放视为无事发生
			logger.Ctx(ctx).Warn().
				Str("orderRef", orderRef).Str("unit", unitID).Str("date", date).
				Err(err).Msg("release skipped")
		}
	}
	return nil
}

// Commit 在订单确认时把整个范围的锁定量核销为已售。
func (e *ReservationEngine) Commit(ctx context.Context, orderRef, unitID string, dates []string, qty int) error {
	for _, date := range ascending(dates) {
		if _, err := e.ledger.CommitSold(ctx, unitID, date, qty); err != nil {
			return fmt.Errorf("commit sold failed for %s/%s: %w", unitID, date, err)
		}
	}
	return nil
}

// Refund 在已确认（已核销为已售）的订单取消时退回容量。
// 与 Release 一样幂等：超出已售量的部分收敛到 0。
func (e *ReservationEngine) Refund(ctx context.Context, orderRef, unitID string, dates []string, qty int) error {
	for _, date := range ascending(dates) {
		if _, err := e.ledger.RefundSold(ctx, unitID, date, qty); err != nil {
			logger.Ctx(ctx).Warn().
				Str("orderRef", orderRef).Str("unit", unitID).Str("date", date).
				Err(err).Msg("refund skipped")
		}
	}
	return nil
}

func (e *ReservationEngine) rollback(ctx context.Context, orderRef, unitID string, dates []string, qty int) {
	for _, date := range dates {
		if _, err := e.ledger.ApplyDelta(ctx, unitID, date, -qty); err != nil {
			// 回滚失败意味着有锁定悬空，必须留痕等待人工核对
			logger.Ctx(ctx).Error().
				Str("orderRef", orderRef).Str("unit", unitID).Str("date", date).
				Err(err).Msg("CRITICAL: rollback of partial lock failed")
		}
	}
}

func ascending(dates []string) []string {
	ordered := make([]string, len(dates))
	copy(ordered, dates)
	sort.Strings(ordered)
	return ordered
}
