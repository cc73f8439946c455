package port

import "context"

type ChargeRequest struct {
	Token          string `json:"token"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ChargeResult 中 Success 为 false 表示网关明确拒绝
type ChargeResult struct {
	Success       bool   `json:"success"`
	Reference     string `json:"reference"`
	DeclineReason string `json:"reason,omitempty"`
}

// PaymentGateway 是支付网关的出站端口。
// Charge 返回 error 表示结果未知（网络或网关故障），与明确拒绝区分开。
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// Refund 是 Charge 的补偿操作。
	Refund(ctx context.Context, reference string, amount int64) error
}
