// internal/service/checkout/domain/state.go
package domain

// State 定义了结账会话的生命周期状态
type State string

const (
	StateInitiated State = "INITIATED" // 会话已创建，尚未预占库存
	StateReserved  State = "RESERVED"  // 库存已预占，等待支付
	StateFinalized State = "FINALIZED" // 支付成功，订单已创建
	StateCancelled State = "CANCELLED" // 用户取消或支付失败
	StateExpired   State = "EXPIRED"   // 预占超时被回收
)

var transitions = map[State][]State{
	StateInitiated: {StateReserved, StateCancelled},
	StateReserved:  {StateFinalized, StateCancelled, StateExpired},
}

// CanTransitionTo 查询状态迁移表
func (s State) CanTransitionTo(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
