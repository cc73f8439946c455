package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

// CommitOrderHandler 在一个事务中完成会话 CAS、预占提交与订单创建。
// 失败时由调用方触发补偿（退款）。
type CommitOrderHandler struct {
	NextHandler
}

func (h *CommitOrderHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.CommitOrder")
	defer span.End()

	now := c.Now()
	next := *c.Session
	if err := next.TransitionTo(domain.StateFinalized, now); err != nil {
		return err
	}
	order := domain.NewOrderFromSession(c.Session, c.PaymentReference, now)
	next.OrderID = order.ID

	err := c.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := c.Sessions.CompareAndSwap(dbc, &next, domain.StateReserved); err != nil {
			return err
		}
		if err := c.Reservations.CommitTx(dbc, next.ReservationGroupID); err != nil {
			return err
		}
		return c.Orders.Create(dbc, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return h.classify(c, err)
	}

	*c.Session = next
	c.Order = order
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	logger.Ctx(ctx).Info().
		Str("session", next.ID).
		Str("order", order.ID).
		Str("order_number", order.OrderNumber).
		Int64("total", order.Total).
		Msg("checkout finalized")
	return h.executeNext(c)
}

// classify 在提交失败后整理会话状态：预占过期则转为 EXPIRED；
// 会话被并发改为 EXPIRED 时同样报告为过期。
func (h *CommitOrderHandler) classify(c *CheckoutContext, err error) error {
	ctx := c.Ctx
	if errors.Is(err, domain.ErrReservationExpired) {
		if relErr := c.ReleaseAs(ctx, domain.StateExpired, "reservation expired during payment"); relErr != nil && !errors.Is(relErr, domain.ErrInvalidState) {
			logger.Ctx(ctx).Error().Err(relErr).Str("session", c.Session.ID).Msg("failed to expire checkout session")
		}
		return err
	}
	if errors.Is(err, domain.ErrInvalidState) {
		current, getErr := c.Sessions.Get(dbctx.Context{Ctx: ctx}, c.Session.ID)
		if getErr == nil {
			*c.Session = *current
			if current.State == domain.StateExpired {
				return errors.Wrapf(domain.ErrReservationExpired, "checkout session %s", current.ID)
			}
		}
	}
	return err
}
