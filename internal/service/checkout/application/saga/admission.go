package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AdmissionHandler 在预占前执行准入策略。
type AdmissionHandler struct {
	NextHandler
}

func (h *AdmissionHandler) Handle(c *CheckoutContext) error {
	if c.Policy == nil {
		return h.executeNext(c)
	}

	ctx, span := c.Tracer.Start(c.Ctx, "saga.Admission")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", c.Cart.ID), attribute.Int("cart.items", len(c.Cart.Items)))

	if err := c.Policy.Admit(ctx, c.Cart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cart rejected by admission policy")
		return err
	}
	span.AddEvent("Admission policy passed")
	return h.executeNext(c)
}
