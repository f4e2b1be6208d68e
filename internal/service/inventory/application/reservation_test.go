package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wangke168/saas-sub000/internal/service/inventory/domain"
)

func seedNights(t *testing.T, ledger *Ledger, unit string, availability map[string]int) {
	t.Helper()
	for date, avail := range availability {
		if _, err := ledger.UpsertBaseline(context.Background(), unit, date, avail, avail, false); err != nil {
			t.Fatalf("seed %s/%s failed: %v", unit, date, err)
		}
	}
}

func TestReservation_LockAllNights(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	seedNights(t, ledger, "ROOM101", map[string]int{
		"2026-10-01": 3, "2026-10-02": 3, "2026-10-03": 3,
	})

	dates := []string{"2026-10-01", "2026-10-02", "2026-10-03"}
	if err := engine.Lock(ctx, "O1", "ROOM101", dates, 2); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	for _, date := range dates {
		record, _ := ledger.Get(ctx, "ROOM101", date)
		if record.Locked != 2 || record.Available != 1 {
			t.Errorf("%s: expected locked=2 available=1, got %+v", date, record)
		}
	}
}

// P2: 第二晚没有余量时，第一、三晚的锁定必须完整回滚。
func TestReservation_PartialFailureRollsBack(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	seedNights(t, ledger, "ROOM101", map[string]int{
		"2026-10-01": 3, "2026-10-02": 0, "2026-10-03": 3,
	})

	err := engine.Lock(ctx, "O1", "ROOM101", []string{"2026-10-01", "2026-10-02", "2026-10-03"}, 1)
	if err == nil {
		t.Fatal("expected lock to fail on sold-out night")
	}

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialFailureError, got %T: %v", err, err)
	}
	if partial.Date != "2026-10-02" {
		t.Errorf("expected failure at 2026-10-02, got %s", partial.Date)
	}
	if partial.Shortfall != 1 {
		t.Errorf("expected shortfall=1, got %d", partial.Shortfall)
	}
	if !errors.Is(err, domain.ErrInsufficientCapacity) {
		t.Errorf("cause must unwrap to ErrInsufficientCapacity, got %v", err)
	}

	for _, date := range []string{"2026-10-01", "2026-10-03"} {
		record, _ := ledger.Get(ctx, "ROOM101", date)
		if record.Locked != 0 {
			t.Errorf("%s: locked must be rolled back to 0, got %d", date, record.Locked)
		}
	}
}

func TestReservation_LockSortsDatesAscending(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	seedNights(t, ledger, "ROOM101", map[string]int{
		"2026-10-01": 1, "2026-10-02": 1,
	})

	// 乱序传入也必须按升序锁定
	if err := engine.Lock(ctx, "O1", "ROOM101", []string{"2026-10-02", "2026-10-01"}, 1); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
}

// P4: 重复释放返回成功且 locked 不会降到 0 以下。
func TestReservation_ReleaseIsIdempotent(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	dates := []string{"2026-10-01", "2026-10-02"}
	seedNights(t, ledger, "ROOM101", map[string]int{"2026-10-01": 3, "2026-10-02": 3})

	if err := engine.Lock(ctx, "O1", "ROOM101", dates, 2); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if err := engine.Release(ctx, "O1", "ROOM101", dates, 2); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := engine.Release(ctx, "O1", "ROOM101", dates, 2); err != nil {
		t.Fatalf("second Release must be a no-op success: %v", err)
	}

	for _, date := range dates {
		record, _ := ledger.Get(ctx, "ROOM101", date)
		if record.Locked != 0 {
			t.Errorf("%s: locked must stay at 0, got %d", date, record.Locked)
		}
		if record.Available != 3 {
			t.Errorf("%s: available must be restored to 3, got %d", date, record.Available)
		}
	}
}

func TestReservation_ReleaseOnUnknownDatesIsNoop(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)

	// 从未建档的日期上释放也不是错误
	if err := engine.Release(context.Background(), "O1", "ROOM101", []string{"2026-12-31"}, 1); err != nil {
		t.Fatalf("Release on unknown date must succeed: %v", err)
	}
}

// 多个订单并发争抢同一晚，成功锁定的总量不超过余量（整范围原子性下的 P1）。
func TestReservation_ConcurrentMultiNightLocks(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	seedNights(t, ledger, "ROOM101", map[string]int{
		"2026-10-01": 10, "2026-10-02": 4, "2026-10-03": 10,
	})
	dates := []string{"2026-10-01", "2026-10-02", "2026-10-03"}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := engine.Lock(ctx, "order", "ROOM101", dates, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	// 瓶颈晚只有 4 间
	if succeeded != 4 {
		t.Errorf("expected 4 successful range locks, got %d", succeeded)
	}

	for _, date := range dates {
		record, _ := ledger.Get(ctx, "ROOM101", date)
		if record.Locked != 4 {
			t.Errorf("%s: expected locked=4 after rollbacks, got %d", date, record.Locked)
		}
		if record.Available < 0 {
			t.Errorf("%s: available went negative: %d", date, record.Available)
		}
	}
}

func TestReservation_CommitConsumesHold(t *testing.T) {
	ledger := newTestLedger()
	engine := NewReservationEngine(ledger)
	ctx := context.Background()

	dates := []string{"2026-10-01"}
	seedNights(t, ledger, "ROOM101", map[string]int{"2026-10-01": 5})

	engine.Lock(ctx, "O1", "ROOM101", dates, 2)
	if err := engine.Commit(ctx, "O1", "ROOM101", dates, 2); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	record, _ := ledger.Get(ctx, "ROOM101", "2026-10-01")
	if record.Sold != 2 || record.Locked != 0 || record.Available != 3 {
		t.Errorf("unexpected record after commit: %+v", record)
	}

	// 已核销之后再释放不会把已售还回可售
	engine.Release(ctx, "O1", "ROOM101", dates, 2)
	record, _ = ledger.Get(ctx, "ROOM101", "2026-10-01")
	if record.Sold != 2 || record.Available != 3 {
		t.Errorf("release after commit must not refund sold quantity: %+v", record)
	}
}
