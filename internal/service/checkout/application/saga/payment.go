package saga

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// PaymentHandler 扣款。明确拒绝时取消会话并释放预占；
// 网关不可用时会话保持 RESERVED，调用方可以重试。
type PaymentHandler struct {
	NextHandler
}

func (h *PaymentHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Payment")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount", c.Session.Total))

	result, err := c.Payment.Charge(ctx, port.ChargeRequest{
		Token:          c.PaymentToken,
		Amount:         c.Session.Total,
		IdempotencyKey: c.Session.ID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment gateway unavailable")
		return errors.Wrap(domain.ErrPaymentUnavailable, err.Error())
	}

	if !result.Success {
		reason := result.DeclineReason
		if reason == "" {
			reason = "declined"
		}
		span.SetStatus(codes.Error, "payment declined")
		logger.Ctx(ctx).Warn().Str("session", c.Session.ID).Str("reason", reason).Msg("payment declined, cancelling checkout")
		if relErr := c.ReleaseAs(ctx, domain.StateCancelled, "payment declined: "+reason); relErr != nil {
			span.RecordError(relErr)
			return relErr
		}
		return &domain.PaymentFailedError{Reason: reason}
	}

	c.PaymentReference = result.Reference
	amount := c.Session.Total
	sessionID := c.Session.ID
	c.AddCompensation(func(ctx context.Context) {
		if err := c.Payment.Refund(ctx, result.Reference, amount); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("session", sessionID).Str("reference", result.Reference).Msg("CRITICAL: refund failed")
			return
		}
		logger.Ctx(ctx).Info().Str("session", sessionID).Str("reference", result.Reference).Msg("payment refunded")
	})

	span.SetAttributes(attribute.String("payment.reference", result.Reference))
	span.AddEvent("Payment captured")
	return h.executeNext(c)
}
