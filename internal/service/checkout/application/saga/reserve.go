package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

// ReserveHandler 在同一事务中预占库存并以 RESERVED 状态持久化会话。
// 同一购物车只保留一个有效预占：旧的 RESERVED 会话先被取消并释放。
type ReserveHandler struct {
	NextHandler
}

const supersededReason = "superseded by a newer checkout of the same cart"

func (h *ReserveHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Reserve")
	defer span.End()

	var reserved domain.CheckoutSession
	err := c.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		next := *c.Session
		if err := supersede(dbc, c, next.CartID); err != nil {
			return err
		}
		group, err := c.Reservations.ReserveTx(dbc, next.CartID, next.ReservationLines(), c.TTL)
		if err != nil {
			return err
		}
		next.ReservationGroupID = group.ID
		next.ExpiresAt = group.ExpiresAt
		if err := next.TransitionTo(domain.StateReserved, c.Now()); err != nil {
			return err
		}
		if err := c.Sessions.Create(dbc, &next); err != nil {
			return err
		}
		reserved = next
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return err
	}
	*c.Session = reserved

	span.SetAttributes(
		attribute.String("checkout.session", reserved.ID),
		attribute.String("reservation.group", reserved.ReservationGroupID),
	)
	logger.Ctx(ctx).Info().
		Str("session", reserved.ID).
		Str("group", reserved.ReservationGroupID).
		Int64("total", reserved.Total).
		Time("expires_at", reserved.ExpiresAt).
		Msg("checkout prepared")
	return h.executeNext(c)
}

// supersede 取消购物车上仍在等待支付的旧会话，避免同一购物车重复占用库存、重复下单。
func supersede(dbc dbctx.Context, c *CheckoutContext, cartID string) error {
	live, err := c.Sessions.ListReservedByCart(dbc, cartID)
	if err != nil {
		return err
	}
	for i := range live {
		old := live[i]
		if err := old.TransitionTo(domain.StateCancelled, c.Now()); err != nil {
			return err
		}
		old.FailureReason = supersededReason
		if err := c.Sessions.CompareAndSwap(dbc, &old, domain.StateReserved); err != nil {
			return err
		}
		if _, err := c.Reservations.ReleaseTx(dbc, old.ReservationGroupID); err != nil {
			return err
		}
		logger.Ctx(dbc.Ctx).Info().
			Str("cart", cartID).
			Str("session", old.ID).
			Str("group", old.ReservationGroupID).
			Msg("previous checkout superseded")
	}
	return nil
}
