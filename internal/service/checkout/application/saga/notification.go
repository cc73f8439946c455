package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

// NotificationHandler 是 finalize 的最后一步：清空购物车、发布 OrderPlaced、检查低库存。
// 这些都是非关键路径，失败只记录日志，订单已经提交。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Notification")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.system", "kafka"))

	if c.Carts != nil {
		if err := c.Carts.MarkCheckedOut(ctx, c.Session.CartID); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("cart", c.Session.CartID).Msg("WARN: failed to mark cart checked out")
		}
	}

	if c.Events != nil && c.Order != nil {
		if err := c.Events.PublishOrderPlaced(ctx, domain.NewOrderPlaced(c.Order)); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).Str("order", c.Order.ID).Msg("WARN: failed to publish order placed event")
		}
	}

	if c.LowStock != nil {
		if low := c.LowStock.AlertIfLowStock(ctx, c.Session.SKUs()); len(low) > 0 {
			span.SetAttributes(attribute.StringSlice("inventory.low_stock", low))
		}
	}

	span.AddEvent("Checkout finalized and notifications sent (or attempted).")
	return h.executeNext(c)
}
