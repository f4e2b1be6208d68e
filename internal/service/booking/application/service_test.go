// internal/service/booking/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wangke168/saas-sub000/internal/pkg/keylock"
	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	bookinfra "github.com/wangke168/saas-sub000/internal/service/booking/infrastructure"
	invapp "github.com/wangke168/saas-sub000/internal/service/inventory/application"
	invdomain "github.com/wangke168/saas-sub000/internal/service/inventory/domain"
	invinfra "github.com/wangke168/saas-sub000/internal/service/inventory/infrastructure"
)

type fakeJobQueue struct {
	jobs []*domain.ResourceJob
}

func (q *fakeJobQueue) Enqueue(_ context.Context, job *domain.ResourceJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

// fakeNotifier 在通知时回读仓储：用来断言"先落库、后通知"的顺序。
type fakeNotifier struct {
	repo   domain.OrderRepository
	events []notifiedEvent
}

type notifiedEvent struct {
	state      domain.State
	savedState domain.State
}

func (n *fakeNotifier) NotifyStateChanged(ctx context.Context, order *domain.Order, state domain.State) error {
	event := notifiedEvent{state: state}
	if saved, err := n.repo.FindByID(ctx, order.ID); err == nil {
		event.savedState = saved.State
	}
	n.events = append(n.events, event)
	return nil
}

type fakeScheduler struct {
	scheduled []string
}

func (s *fakeScheduler) SchedulePaymentTimeout(_ context.Context, orderID string, _ time.Time) error {
	s.scheduled = append(s.scheduled, orderID)
	return nil
}

type fixture struct {
	svc       *OrderService
	repo      *bookinfra.MemoryOrderRepository
	ledger    *invapp.Ledger
	jobs      *fakeJobQueue
	notifier  *fakeNotifier
	scheduler *fakeScheduler
}

var stayNights = []string{"2026-10-01", "2026-10-02", "2026-10-03"}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()
	ctx := context.Background()

	ledger := invapp.NewLedger(invinfra.NewMemoryCapacityStore(), keylock.NewKeyedMutex())
	for _, date := range stayNights {
		if _, err := ledger.UpsertBaseline(ctx, "room-a", date, total, total, false); err != nil {
			t.Fatalf("seed baseline: %v", err)
		}
	}

	repo := bookinfra.NewMemoryOrderRepository()
	jobs := &fakeJobQueue{}
	notifier := &fakeNotifier{repo: repo}
	scheduler := &fakeScheduler{}

	svc := NewOrderService(
		repo,
		invapp.NewReservationEngine(ledger),
		jobs,
		notifier,
		scheduler,
		noop.NewTracerProvider().Tracer("test"),
		15*time.Minute,
	)
	return &fixture{svc: svc, repo: repo, ledger: ledger, jobs: jobs, notifier: notifier, scheduler: scheduler}
}

func (f *fixture) createOrder(t *testing.T, qty int) *domain.Order {
	t.Helper()
	result, err := f.svc.CreateOrder(context.Background(), f.createRequest(qty))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if !result.Created {
		t.Fatal("expected a fresh order")
	}
	return result.Order
}

func (f *fixture) createRequest(qty int) *CreateOrderRequest {
	checkIn, _ := time.Parse(domain.DateLayout, "2026-10-01")
	checkOut, _ := time.Parse(domain.DateLayout, "2026-10-04")
	return &CreateOrderRequest{
		Channel:        "ctrip",
		ChannelOrderID: "C123",
		UnitID:         "room-a",
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Quantity:       qty,
	}
}

func (f *fixture) capacity(t *testing.T, date string) *invdomain.CapacityRecord {
	t.Helper()
	record, err := f.ledger.Get(context.Background(), "room-a", date)
	if err != nil {
		t.Fatalf("read capacity %s: %v", date, err)
	}
	return record
}

func TestCreateOrderLocksAllNights(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)

	if order.State != domain.StateCreatedPendingPayment {
		t.Errorf("state = %s, want CREATED_PENDING_PAYMENT", order.State)
	}
	for _, date := range stayNights {
		record := f.capacity(t, date)
		if record.Locked != 2 || record.Available != 3 {
			t.Errorf("%s: locked=%d available=%d, want 2/3", date, record.Locked, record.Available)
		}
	}
	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != order.ID {
		t.Errorf("payment timeout not scheduled: %v", f.scheduler.scheduled)
	}
}

func TestCreateOrderIdempotent(t *testing.T) {
	f := newFixture(t, 5)
	first := f.createOrder(t, 2)

	second, err := f.svc.CreateOrder(context.Background(), f.createRequest(2))
	if err != nil {
		t.Fatalf("duplicate CreateOrder failed: %v", err)
	}
	if second.Created {
		t.Error("duplicate webhook must not create a new order")
	}
	if second.Order.ID != first.ID {
		t.Errorf("duplicate returned different order: %s vs %s", second.Order.ID, first.ID)
	}
	// 容量只锁一次
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Locked != 2 {
			t.Errorf("%s: locked=%d, capacity must not be double-locked", date, record.Locked)
		}
	}
	if len(f.scheduler.scheduled) != 1 {
		t.Errorf("timeout scheduled %d times, want 1", len(f.scheduler.scheduled))
	}
}

func TestCreateOrderInsufficientCapacityLeavesNoTrace(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.CreateOrder(context.Background(), f.createRequest(2))
	if err == nil {
		t.Fatal("expected capacity failure")
	}
	var pfe *invapp.PartialFailureError
	if !errors.As(err, &pfe) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}

	if _, err := f.repo.FindByChannelOrder(context.Background(), "ctrip", "C123"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Error("failed order must not be persisted")
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Locked != 0 {
			t.Errorf("%s: locked=%d after rollback, want 0", date, record.Locked)
		}
	}
}

func TestPaymentEnqueuesConfirmJob(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)

	updated, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "channel payment notified")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.State != domain.StateConfirming {
		t.Errorf("state = %s, want CONFIRMING", updated.State)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].Operation != domain.JobConfirm {
		t.Fatalf("expected one confirm job, got %+v", f.jobs.jobs)
	}
	// 确认结果出来之前不通知渠道
	if len(f.notifier.events) != 0 {
		t.Errorf("no notification expected yet, got %+v", f.notifier.events)
	}
}

func TestCompleteConfirmation(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "paid"); err != nil {
		t.Fatal(err)
	}

	confirmed, err := f.svc.CompleteConfirmation(context.Background(), order.ID, "PROV-88")
	if err != nil {
		t.Fatalf("CompleteConfirmation failed: %v", err)
	}
	if confirmed.State != domain.StateConfirmed || confirmed.ProviderRef != "PROV-88" {
		t.Errorf("got state=%s ref=%s", confirmed.State, confirmed.ProviderRef)
	}
	for _, date := range stayNights {
		record := f.capacity(t, date)
		if record.Sold != 2 || record.Locked != 0 {
			t.Errorf("%s: sold=%d locked=%d, want 2/0", date, record.Sold, record.Locked)
		}
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(f.notifier.events))
	}
	event := f.notifier.events[0]
	if event.state != domain.StateConfirmed || event.savedState != domain.StateConfirmed {
		t.Errorf("notification fired before state was committed: %+v", event)
	}

	// 重复任务幂等跳过，不重复通知
	if _, err := f.svc.CompleteConfirmation(context.Background(), order.ID, "PROV-88"); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.events) != 1 {
		t.Errorf("duplicate completion must not notify again, got %d events", len(f.notifier.events))
	}
}

func TestPreConfirmationCancelApprovedLocally(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)

	cancelled, err := f.svc.RequestCancel(context.Background(), order.ID, 2, "guest changed plans")
	if err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}
	if cancelled.State != domain.StateCancelApproved {
		t.Errorf("state = %s, want CANCEL_APPROVED", cancelled.State)
	}
	// 上游对未确认的单无感知，不应产生任何资源任务
	if len(f.jobs.jobs) != 0 {
		t.Errorf("no provider job expected, got %+v", f.jobs.jobs)
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Available != 5 || record.Locked != 0 {
			t.Errorf("%s: available=%d locked=%d, capacity not fully released", date, record.Available, record.Locked)
		}
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].state != domain.StateCancelApproved {
		t.Errorf("expected one CANCEL_APPROVED notification, got %+v", f.notifier.events)
	}
}

func TestDuplicateCancelWebhookAbsorbed(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)

	if _, err := f.svc.RequestCancel(context.Background(), order.ID, 2, "guest changed plans"); err != nil {
		t.Fatalf("RequestCancel failed: %v", err)
	}

	// 渠道重投同一个取消回调：回成功，不产生新的副作用
	again, err := f.svc.RequestCancel(context.Background(), order.ID, 2, "guest changed plans")
	if err != nil {
		t.Fatalf("duplicate cancel must be absorbed, got %v", err)
	}
	if again.State != domain.StateCancelApproved {
		t.Errorf("state = %s, want CANCEL_APPROVED", again.State)
	}
	if len(f.jobs.jobs) != 0 {
		t.Errorf("no provider job expected, got %+v", f.jobs.jobs)
	}
	if len(f.notifier.events) != 1 {
		t.Errorf("expected exactly one notification, got %+v", f.notifier.events)
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Available != 5 || record.Locked != 0 {
			t.Errorf("%s: available=%d locked=%d, released quantities must not move again", date, record.Available, record.Locked)
		}
	}
}

func TestPartialCancelResumesPriorState(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 3)

	updated, err := f.svc.RequestCancel(context.Background(), order.ID, 1, "one room less")
	if err != nil {
		t.Fatal(err)
	}
	if updated.State != domain.StateCreatedPendingPayment {
		t.Errorf("state = %s, want resumed CREATED_PENDING_PAYMENT", updated.State)
	}
	if updated.RemainingQuantity() != 2 {
		t.Errorf("remaining = %d, want 2", updated.RemainingQuantity())
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Locked != 2 || record.Available != 3 {
			t.Errorf("%s: locked=%d available=%d, want 2/3", date, record.Locked, record.Available)
		}
	}
}

func TestPostConfirmationCancelRefundsSold(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 3)
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "paid"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CompleteConfirmation(context.Background(), order.ID, "PROV-1"); err != nil {
		t.Fatal(err)
	}

	pending, err := f.svc.RequestCancel(context.Background(), order.ID, 1, "partial refund")
	if err != nil {
		t.Fatal(err)
	}
	if pending.State != domain.StateCancelRequested {
		t.Errorf("state = %s, want CANCEL_REQUESTED (provider must approve)", pending.State)
	}
	if len(f.jobs.jobs) != 2 || f.jobs.jobs[1].Operation != domain.JobCancel || f.jobs.jobs[1].Quantity != 1 {
		t.Fatalf("expected a cancel job for qty 1, got %+v", f.jobs.jobs)
	}

	resumed, err := f.svc.CompleteCancellation(context.Background(), order.ID, "provider approved")
	if err != nil {
		t.Fatal(err)
	}
	if resumed.State != domain.StateConfirmed {
		t.Errorf("state = %s, want resumed CONFIRMED", resumed.State)
	}
	if resumed.RemainingQuantity() != 2 {
		t.Errorf("remaining = %d, want 2", resumed.RemainingQuantity())
	}
	for _, date := range stayNights {
		record := f.capacity(t, date)
		if record.Sold != 2 || record.Available != 3 {
			t.Errorf("%s: sold=%d available=%d, want 2/3 after refund", date, record.Sold, record.Available)
		}
	}
}

func TestPaymentTimeoutCancelsUnpaidOrder(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)

	err := f.svc.ProcessPaymentTimeout(context.Background(), &domain.PaymentTimeoutEvent{OrderID: order.ID})
	if err != nil {
		t.Fatalf("ProcessPaymentTimeout failed: %v", err)
	}

	expired, err := f.repo.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if expired.State != domain.StateCancelApproved {
		t.Errorf("state = %s, want CANCEL_APPROVED", expired.State)
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Available != 5 {
			t.Errorf("%s: available=%d, capacity not released on timeout", date, record.Available)
		}
	}
}

func TestPaymentTimeoutIgnoresPaidOrder(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "paid"); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.ProcessPaymentTimeout(context.Background(), &domain.PaymentTimeoutEvent{OrderID: order.ID}); err != nil {
		t.Fatalf("timeout on paid order must be a no-op, got %v", err)
	}
	current, _ := f.repo.FindByID(context.Background(), order.ID)
	if current.State != domain.StateConfirming {
		t.Errorf("state = %s, paid order must be untouched", current.State)
	}
}

func TestRejectedOrderReleasesHold(t *testing.T) {
	f := newFixture(t, 5)
	order := f.createOrder(t, 2)
	if _, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "paid"); err != nil {
		t.Fatal(err)
	}

	rejected, err := f.svc.Transition(context.Background(), order.ID, domain.StateRejected, "provider refused, confirmed by operator")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.State != domain.StateRejected {
		t.Errorf("state = %s, want REJECTED", rejected.State)
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Available != 5 || record.Locked != 0 {
			t.Errorf("%s: available=%d locked=%d, hold not released", date, record.Available, record.Locked)
		}
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].state != domain.StateRejected {
		t.Errorf("expected one REJECTED notification, got %+v", f.notifier.events)
	}
}
