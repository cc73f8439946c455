package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

// ReservationCheckHandler 在扣款前确认预占组仍然有效，避免对已失效的预占收费。
type ReservationCheckHandler struct {
	NextHandler
}

func (h *ReservationCheckHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.ReservationCheck")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.group", c.Session.ReservationGroupID))

	group, err := c.Reservations.Group(ctx, c.Session.ReservationGroupID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if group.Lapsed(c.Now()) {
		err = errors.Wrapf(domain.ErrReservationExpired, "checkout session %s", c.Session.ID)
		span.SetStatus(codes.Error, "reservation lapsed")
		if relErr := c.ReleaseAs(ctx, domain.StateExpired, "reservation expired before payment"); relErr != nil && !errors.Is(relErr, domain.ErrInvalidState) {
			logger.Ctx(ctx).Error().Err(relErr).Str("session", c.Session.ID).Msg("failed to expire lapsed checkout session")
		}
		return err
	}
	if !group.AllHeld() {
		err = errors.Wrapf(domain.ErrInvalidState, "reservation group %s is not held", group.ID)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.AddEvent("Reservation group still held")
	return h.executeNext(c)
}
