// internal/service/booking/domain/state.go
package domain

import "fmt"

// State 定义了订单的生命周期状态。
// 每个渠道回调无论报文长什么样，最终都必须映射到这张状态表上来。
type State string

const (
	StateCreatedPendingPayment State = "CREATED_PENDING_PAYMENT" // 已创建，容量已锁定，等待支付
	StateConfirming            State = "CONFIRMING"              // 已支付，等待供应商确认
	StateConfirmed             State = "CONFIRMED"               // 供应商已确认
	StateRejected              State = "REJECTED"                // 供应商拒绝确认（人工核实后落定）
	StateCancelRequested       State = "CANCEL_REQUESTED"        // 取消申请中
	StateCancelApproved        State = "CANCEL_APPROVED"         // 取消已通过，容量已释放
	StateCancelRejected        State = "CANCEL_REJECTED"         // 取消被拒绝
	StateVerified              State = "VERIFIED"                // 已核销（客人已消费）
)

// transitions 是唯一的合法迁移表。除表内列出的边之外一律拒绝。
// CANCEL_APPROVED 的出边只用于部分取消后回到原状态，由 Order.Apply 额外把关。
var transitions = map[State][]State{
	StateCreatedPendingPayment: {StateConfirming, StateCancelRequested},
	StateConfirming:            {StateConfirmed, StateRejected},
	StateConfirmed:             {StateCancelRequested, StateVerified},
	StateCancelRequested:       {StateCancelApproved, StateCancelRejected},
	StateCancelRejected:        {StateCancelRequested, StateVerified},
	StateCancelApproved:        {StateCreatedPendingPayment, StateConfirmed},
	StateRejected:              {},
	StateVerified:              {},
}

// CanTransition 判断 from -> to 是否在合法迁移表内。
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 判断一个状态是否不再有任何出边。
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError 表示渠道或内部流程试图走一条不存在的边。
// 属于集成错误：记录并上抛，绝不重试。
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}
