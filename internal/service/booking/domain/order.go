// internal/service/booking/domain/order.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout 与库存台账一致的日历日格式。
const DateLayout = "2006-01-02"

// Transition 是一次状态迁移的审计记录。
type Transition struct {
	From   State
	To     State
	Reason string
	At     time.Time
}

// Cancellation 是部分取消的子台账行。
// 同一个订单可以多次部分取消，每次留一行，剩余数量由此推导，
// 不在订单主行上做隐式扣减。
type Cancellation struct {
	Quantity int
	Reason   string
	At       time.Time
}

// Order 是订单聚合的根实体。
// (Channel, ChannelOrderID) 是幂等键：渠道在超时/重试时会重复投递同一个单。
type Order struct {
	ID             string // 内部订单号
	Channel        string // 渠道标识
	ChannelOrderID string // 渠道侧订单号
	UnitID         string // 资源单元（房型）
	CheckIn        time.Time
	CheckOut       time.Time
	Quantity       int

	State       State
	PriorState  State // 发起取消前的状态，取消被拒/部分取消后回到这里
	ProviderRef string // 供应商确认号，确认前为空

	PendingCancelQty int
	Cancellations    []Cancellation
	Transitions      []Transition

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder 创建一个新的订单实例，初始状态为待支付。
// 容量锁定由应用层在进入该状态时执行，这里只负责实体本身。
func NewOrder(id, channel, channelOrderID, unitID string, checkIn, checkOut time.Time, quantity int) (*Order, error) {
	if id == "" || channel == "" || channelOrderID == "" || unitID == "" {
		return nil, errors.New("cannot create order with empty required fields")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("invalid order quantity: %d", quantity)
	}
	if !checkOut.After(checkIn) {
		return nil, fmt.Errorf("invalid stay range: %s ~ %s", checkIn.Format(DateLayout), checkOut.Format(DateLayout))
	}

	now := time.Now()
	return &Order{
		ID:             id,
		Channel:        channel,
		ChannelOrderID: channelOrderID,
		UnitID:         unitID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Quantity:       quantity,
		State:          StateCreatedPendingPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Nights 按升序展开订单覆盖的每一晚（离店日不含）。
func (o *Order) Nights() []string {
	var nights []string
	for t := o.CheckIn; t.Before(o.CheckOut); t = t.AddDate(0, 0, 1) {
		nights = append(nights, t.Format(DateLayout))
	}
	return nights
}

// RemainingQuantity 返回扣除已取消部分后的有效数量。
func (o *Order) RemainingQuantity() int {
	cancelled := 0
	for _, c := range o.Cancellations {
		cancelled += c.Quantity
	}
	return o.Quantity - cancelled
}

// Apply 执行一次状态迁移。只负责状态流转和审计留痕，不触发任何外部副作用。
func (o *Order) Apply(to State, reason string) error {
	if !CanTransition(o.State, to) {
		return &InvalidTransitionError{From: o.State, To: to}
	}
	// CANCEL_APPROVED 的出边只在部分取消后可走：全量取消后订单停在 CANCEL_APPROVED
	if o.State == StateCancelApproved && o.RemainingQuantity() <= 0 {
		return &InvalidTransitionError{From: o.State, To: to}
	}
	if to == StateCancelRequested {
		o.PriorState = o.State
	}

	now := time.Now()
	o.Transitions = append(o.Transitions, Transition{From: o.State, To: to, Reason: reason, At: now})
	o.State = to
	o.UpdatedAt = now
	return nil
}

// RequestCancel 登记一笔取消申请。数量不得超过剩余有效数量。
func (o *Order) RequestCancel(qty int, reason string) error {
	if qty <= 0 {
		return fmt.Errorf("invalid cancel quantity: %d", qty)
	}
	if remaining := o.RemainingQuantity(); qty > remaining {
		return fmt.Errorf("cancel quantity %d exceeds remaining %d", qty, remaining)
	}
	if err := o.Apply(StateCancelRequested, reason); err != nil {
		return err
	}
	o.PendingCancelQty = qty
	return nil
}

// ApproveCancel 在取消通过后把申请量落入子台账。
// 调用方必须已经完成 CANCEL_APPROVED 迁移和容量释放。
func (o *Order) ApproveCancel(reason string) int {
	qty := o.PendingCancelQty
	if qty <= 0 {
		return 0
	}
	o.Cancellations = append(o.Cancellations, Cancellation{Quantity: qty, Reason: reason, At: time.Now()})
	o.PendingCancelQty = 0
	return qty
}

// RejectCancel 清掉未通过的取消申请。
func (o *Order) RejectCancel() {
	o.PendingCancelQty = 0
}

// MarkConfirmed 记录供应商确认号。
func (o *Order) MarkConfirmed(providerRef string) {
	o.ProviderRef = providerRef
	o.UpdatedAt = time.Now()
}
