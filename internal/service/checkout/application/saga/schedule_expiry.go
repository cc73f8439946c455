package saga

import (
	"storefront/internal/pkg/logger"
)

// ScheduleExpiryHandler 投递一个到期检查任务。
// 投递失败不影响 prepare 结果，过期预占最终由清扫器回收。
type ScheduleExpiryHandler struct {
	NextHandler
}

func (h *ScheduleExpiryHandler) Handle(c *CheckoutContext) error {
	if c.Scheduler == nil {
		return h.executeNext(c)
	}

	ctx, span := c.Tracer.Start(c.Ctx, "saga.ScheduleExpiry")
	defer span.End()

	if err := c.Scheduler.ScheduleExpiryCheck(ctx, c.Session.ID, c.Session.ExpiresAt); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("session", c.Session.ID).Msg("WARN: failed to schedule expiry check")
	}
	return h.executeNext(c)
}
