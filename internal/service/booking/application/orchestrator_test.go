// internal/service/booking/application/orchestrator_test.go
package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wangke168/saas-sub000/internal/service/booking/domain"
	bookinfra "github.com/wangke168/saas-sub000/internal/service/booking/infrastructure"
	"github.com/wangke168/saas-sub000/internal/service/booking/port"
)

// fakeProvider 按预设脚本应答：errs[i] 是第 i 次调用的结果，
// 超出脚本长度后一律成功。
type fakeProvider struct {
	confirmErrs  []error
	cancelErrs   []error
	confirmCalls int
	cancelCalls  int
	ref          string
}

func (p *fakeProvider) ConfirmOrder(_ context.Context, _ *domain.Order) (*port.ConfirmResult, error) {
	i := p.confirmCalls
	p.confirmCalls++
	if i < len(p.confirmErrs) && p.confirmErrs[i] != nil {
		return nil, p.confirmErrs[i]
	}
	return &port.ConfirmResult{ProviderRef: p.ref}, nil
}

func (p *fakeProvider) CancelOrder(_ context.Context, _ *domain.Order, _ int) error {
	i := p.cancelCalls
	p.cancelCalls++
	if i < len(p.cancelErrs) {
		return p.cancelErrs[i]
	}
	return nil
}

func transient(code string) *port.ProviderError {
	return &port.ProviderError{Code: code, Message: "upstream unavailable", Retryable: true}
}

func permanent(code, raw string) *port.ProviderError {
	return &port.ProviderError{Code: code, Message: "rejected", Raw: raw, Retryable: false}
}

type orchFixture struct {
	*fixture
	orc        *ResourceJobOrchestrator
	provider   *fakeProvider
	exceptions *bookinfra.MemoryExceptionRepository
	slept      []time.Duration
}

func newOrchFixture(t *testing.T, total int, provider *fakeProvider) *orchFixture {
	t.Helper()
	base := newFixture(t, total)
	exceptions := bookinfra.NewMemoryExceptionRepository()

	orc := NewResourceJobOrchestrator(
		base.svc, provider, exceptions,
		noop.NewTracerProvider().Tracer("test"),
		DefaultOrchestratorConfig(),
	)
	of := &orchFixture{fixture: base, orc: orc, provider: provider, exceptions: exceptions}
	orc.sleep = func(_ context.Context, d time.Duration) error {
		of.slept = append(of.slept, d)
		return nil
	}
	return of
}

// confirmingOrder 建单并走到 CONFIRMING，返回待确认的订单。
func (f *orchFixture) confirmingOrder(t *testing.T, qty int) *domain.Order {
	t.Helper()
	order := f.createOrder(t, qty)
	updated, err := f.svc.Transition(context.Background(), order.ID, domain.StateConfirming, "paid")
	if err != nil {
		t.Fatal(err)
	}
	return updated
}

func TestOrchestratorRetriesTransientThenSucceeds(t *testing.T) {
	provider := &fakeProvider{
		confirmErrs: []error{transient("HTTP_503"), transient("HTTP_503"), nil},
		ref:         "PROV-7",
	}
	f := newOrchFixture(t, 5, provider)
	order := f.confirmingOrder(t, 2)

	job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if provider.confirmCalls != 3 {
		t.Errorf("provider called %d times, want 3", provider.confirmCalls)
	}
	if len(f.slept) != 2 || f.slept[0] != 2*time.Second || f.slept[1] != 5*time.Second {
		t.Errorf("backoff sequence = %v, want [2s 5s]", f.slept)
	}

	confirmed, _ := f.repo.FindByID(context.Background(), order.ID)
	if confirmed.State != domain.StateConfirmed || confirmed.ProviderRef != "PROV-7" {
		t.Errorf("got state=%s ref=%s", confirmed.State, confirmed.ProviderRef)
	}
	// 最终成功只通知一次，且在状态落库之后
	if len(f.notifier.events) != 1 || f.notifier.events[0].savedState != domain.StateConfirmed {
		t.Errorf("unexpected notifications: %+v", f.notifier.events)
	}
	if pending, _ := f.exceptions.ListPending(context.Background()); len(pending) != 0 {
		t.Errorf("no exception expected on eventual success, got %d", len(pending))
	}
}

func TestOrchestratorExhaustsRetriesAndEscalates(t *testing.T) {
	provider := &fakeProvider{
		confirmErrs: []error{transient("TRANSPORT"), transient("TRANSPORT"), transient("TRANSPORT"), transient("TRANSPORT")},
	}
	f := newOrchFixture(t, 5, provider)
	order := f.confirmingOrder(t, 2)

	job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if provider.confirmCalls != 4 {
		t.Errorf("provider called %d times, want MaxAttempts=4", provider.confirmCalls)
	}
	if len(f.slept) != 3 || f.slept[2] != 10*time.Second {
		t.Errorf("backoff sequence = %v, want [2s 5s 10s]", f.slept)
	}

	pending, err := f.exceptions.ListPending(context.Background())
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending exception, got %d (%v)", len(pending), err)
	}
	if pending[0].OrderID != order.ID || pending[0].Reason != "retries_exhausted" {
		t.Errorf("unexpected exception: %+v", pending[0])
	}

	// 订单停在当前状态等人工，编排器自己不改判
	held, _ := f.repo.FindByID(context.Background(), order.ID)
	if held.State != domain.StateConfirming {
		t.Errorf("state = %s, order must hold CONFIRMING", held.State)
	}
	if len(f.notifier.events) != 0 {
		t.Errorf("no notification on escalation, got %+v", f.notifier.events)
	}
}

func TestOrchestratorPermanentFailureEscalatesImmediately(t *testing.T) {
	provider := &fakeProvider{
		confirmErrs: []error{permanent("1005", `{"code":"1005","message":"room sold out"}`)},
	}
	f := newOrchFixture(t, 5, provider)
	order := f.confirmingOrder(t, 2)

	job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if provider.confirmCalls != 1 {
		t.Errorf("permanent failure retried: %d calls, want 1", provider.confirmCalls)
	}
	if len(f.slept) != 0 {
		t.Errorf("no backoff expected, slept %v", f.slept)
	}

	pending, _ := f.exceptions.ListPending(context.Background())
	if len(pending) != 1 || pending[0].Reason != "permanent_failure" {
		t.Fatalf("expected one permanent_failure exception, got %+v", pending)
	}
	if pending[0].RawResponse != `{"code":"1005","message":"room sold out"}` {
		t.Errorf("raw response not captured: %q", pending[0].RawResponse)
	}
}

func TestOrchestratorStateGuardDropsStaleJob(t *testing.T) {
	provider := &fakeProvider{}
	f := newOrchFixture(t, 5, provider)
	order := f.createOrder(t, 2) // 还没支付，不在 CONFIRMING

	job := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), job); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if provider.confirmCalls != 0 {
		t.Errorf("stale job must not reach the provider, got %d calls", provider.confirmCalls)
	}
}

func TestOrchestratorUnknownOrderDropped(t *testing.T) {
	provider := &fakeProvider{}
	f := newOrchFixture(t, 5, provider)

	job := &domain.ResourceJob{OrderID: "no-such-order", Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), job); err != nil {
		t.Fatalf("unknown order must be dropped silently, got %v", err)
	}
	if provider.confirmCalls != 0 {
		t.Errorf("provider must not be called for unknown order")
	}
}

func TestOrchestratorCancelJob(t *testing.T) {
	provider := &fakeProvider{ref: "PROV-9"}
	f := newOrchFixture(t, 5, provider)
	order := f.confirmingOrder(t, 3)

	confirmJob := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobConfirm}
	if err := f.orc.Process(context.Background(), confirmJob); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.RequestCancel(context.Background(), order.ID, 1, "partial refund"); err != nil {
		t.Fatal(err)
	}

	cancelJob := &domain.ResourceJob{OrderID: order.ID, Operation: domain.JobCancel, Quantity: 1}
	if err := f.orc.Process(context.Background(), cancelJob); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if provider.cancelCalls != 1 {
		t.Errorf("provider cancel called %d times, want 1", provider.cancelCalls)
	}

	resumed, _ := f.repo.FindByID(context.Background(), order.ID)
	if resumed.State != domain.StateConfirmed || resumed.RemainingQuantity() != 2 {
		t.Errorf("got state=%s remaining=%d, want CONFIRMED/2", resumed.State, resumed.RemainingQuantity())
	}
	for _, date := range stayNights {
		if record := f.capacity(t, date); record.Sold != 2 || record.Available != 3 {
			t.Errorf("%s: sold=%d available=%d, want 2/3", date, record.Sold, record.Available)
		}
	}
}
