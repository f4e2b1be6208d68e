// internal/service/booking/domain/state_test.go
package domain

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateCreatedPendingPayment, StateConfirming},
		{StateCreatedPendingPayment, StateCancelRequested},
		{StateConfirming, StateConfirmed},
		{StateConfirming, StateRejected},
		{StateConfirmed, StateCancelRequested},
		{StateConfirmed, StateVerified},
		{StateCancelRequested, StateCancelApproved},
		{StateCancelRequested, StateCancelRejected},
		{StateCancelRejected, StateCancelRequested},
		{StateCancelRejected, StateVerified},
		{StateCancelApproved, StateCreatedPendingPayment},
		{StateCancelApproved, StateConfirmed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to State }{
		{StateCreatedPendingPayment, StateConfirmed}, // 不能跳过确认中
		{StateConfirmed, StateConfirming},            // 不能回退
		{StateRejected, StateConfirming},             // 终态无出边
		{StateVerified, StateCancelRequested},        // 核销后不可取消
		{StateConfirming, StateCancelRequested},      // 确认中不接受取消，等上游结果
		{StateCancelRequested, StateConfirmed},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be forbidden", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StateRejected) || !IsTerminal(StateVerified) {
		t.Error("REJECTED and VERIFIED must be terminal")
	}
	for _, s := range []State{StateCreatedPendingPayment, StateConfirming, StateConfirmed, StateCancelRequested, StateCancelApproved, StateCancelRejected} {
		if IsTerminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestInvalidTransitionError(t *testing.T) {
	order := mustNewOrder(t, 2)
	err := order.Apply(StateConfirmed, "skip")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != StateCreatedPendingPayment || ite.To != StateConfirmed {
		t.Errorf("unexpected error detail: %+v", ite)
	}
	if order.State != StateCreatedPendingPayment {
		t.Errorf("failed transition must not change state, got %s", order.State)
	}
}
