package adapter

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain/port"
)

const (
	DeclineTokenPrefix = "tok_decline"
	ErrorTokenPrefix   = "tok_error"
)

var ErrSimulatedOutage = errors.New("simulated payment gateway outage")

type simulatedCharge struct {
	reference string
	amount    int64
	refunded  bool
}

// SimulatedPaymentGateway 是确定性的本地支付网关：
// tok_decline 前缀的 token 被拒绝，tok_error 前缀的 token 模拟网关故障，其余全部成功。
// 相同的幂等键返回同一笔扣款。
type SimulatedPaymentGateway struct {
	mu          sync.Mutex
	byKey       map[string]*simulatedCharge
	byReference map[string]*simulatedCharge
}

func NewSimulatedPaymentGateway() *SimulatedPaymentGateway {
	return &SimulatedPaymentGateway{
		byKey:       make(map[string]*simulatedCharge),
		byReference: make(map[string]*simulatedCharge),
	}
}

func (g *SimulatedPaymentGateway) Charge(ctx context.Context, req port.ChargeRequest) (*port.ChargeResult, error) {
	switch {
	case strings.HasPrefix(req.Token, ErrorTokenPrefix):
		return nil, ErrSimulatedOutage
	case strings.HasPrefix(req.Token, DeclineTokenPrefix):
		return &port.ChargeResult{Success: false, DeclineReason: "card declined"}, nil
	case req.Amount < 0:
		return &port.ChargeResult{Success: false, DeclineReason: "invalid amount"}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if req.IdempotencyKey != "" {
		if c, ok := g.byKey[req.IdempotencyKey]; ok && !c.refunded {
			return &port.ChargeResult{Success: true, Reference: c.reference}, nil
		}
	}

	c := &simulatedCharge{reference: "pay_" + strings.ReplaceAll(uuid.NewString(), "-", ""), amount: req.Amount}
	g.byReference[c.reference] = c
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = c
	}
	logger.Ctx(ctx).Info().Str("reference", c.reference).Int64("amount", req.Amount).Msg("simulated payment captured")
	return &port.ChargeResult{Success: true, Reference: c.reference}, nil
}

func (g *SimulatedPaymentGateway) Refund(ctx context.Context, reference string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byReference[reference]
	if !ok {
		return errors.Errorf("unknown payment reference %s", reference)
	}
	if amount != c.amount {
		return errors.Errorf("refund amount %d does not match charge %d", amount, c.amount)
	}
	c.refunded = true
	logger.Ctx(ctx).Info().Str("reference", reference).Int64("amount", amount).Msg("simulated payment refunded")
	return nil
}

// Refunded 报告某笔扣款是否已退款
func (g *SimulatedPaymentGateway) Refunded(reference string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byReference[reference]
	return ok && c.refunded
}
