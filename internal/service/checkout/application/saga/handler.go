package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// CheckoutContext 在责任链中传递一次 prepare 或 finalize 的上下文数据。
type CheckoutContext struct {
	Ctx     context.Context
	Tracer  trace.Tracer
	Now     func() time.Time
	Session *domain.CheckoutSession

	// prepare
	Cart *domain.Cart
	TTL  time.Duration

	// finalize
	PaymentToken     string
	PaymentReference string
	Order            *domain.Order

	Runner       database.TxRunner
	Sessions     domain.SessionRepository
	Orders       domain.OrderRepository
	Reservations port.Reservations
	Carts        port.CartStore
	Payment      port.PaymentGateway
	Policy       port.AdmissionPolicy // 可以为 nil
	Scheduler    port.ExpiryScheduler // 可以为 nil
	Events       port.EventPublisher  // 可以为 nil
	LowStock     port.LowStockNotifier

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册补偿函数，后注册的先执行
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	logger.Ctx(ctx).Info().Str("session", c.Session.ID).Int("count", len(c.compensations)).Msg("Executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// ReleaseAs 在一个事务中把会话从当前状态 CAS 到 to 并释放其预占组。
// 会话已被并发请求改变时返回 ErrInvalidState，内存中的会话保持不变。
func (c *CheckoutContext) ReleaseAs(ctx context.Context, to domain.State, reason string) error {
	from := c.Session.State
	next := *c.Session
	if err := next.TransitionTo(to, c.Now()); err != nil {
		return err
	}
	next.FailureReason = reason

	err := c.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := c.Sessions.CompareAndSwap(dbc, &next, from); err != nil {
			return err
		}
		_, err := c.Reservations.ReleaseTx(dbc, next.ReservationGroupID)
		return err
	})
	if err != nil {
		return err
	}
	*c.Session = next

	logger.Ctx(ctx).Info().
		Str("session", next.ID).
		Str("group", next.ReservationGroupID).
		Str("state", string(to)).
		Str("reason", reason).
		Msg("checkout session resolved, reservation released")

	if to == domain.StateExpired && c.Events != nil {
		if err := c.Events.PublishCheckoutExpired(ctx, domain.NewCheckoutExpired(&next, next.UpdatedAt)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("session", next.ID).Msg("failed to publish checkout expired event")
		}
	}
	return nil
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(c *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(c *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(c)
	}
	return nil
}
