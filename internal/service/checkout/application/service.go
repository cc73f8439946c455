// internal/service/checkout/application/service.go
package application

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/checkout/application/saga"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// Dependencies 汇集结账编排所需的全部出站端口。
type Dependencies struct {
	Runner       database.TxRunner
	Sessions     domain.SessionRepository
	Orders       domain.OrderRepository
	Reservations port.Reservations
	Carts        port.CartStore
	Payment      port.PaymentGateway
	Policy       port.AdmissionPolicy
	Scheduler    port.ExpiryScheduler
	Events       port.EventPublisher
	LowStock     port.LowStockNotifier
}

// CheckoutService 编排 prepare → payment → finalize/cancel 流程，是系统中唯一的状态机。
type CheckoutService struct {
	deps              Dependencies
	ttl               atomic.Int64
	processingTimeout time.Duration
	tracer            trace.Tracer
}

func NewCheckoutService(deps Dependencies, reservationTTL, processingTimeout time.Duration) *CheckoutService {
	s := &CheckoutService{
		deps:              deps,
		processingTimeout: processingTimeout,
		tracer:            otel.Tracer("checkout"),
	}
	s.SetReservationTTL(reservationTTL)
	return s
}

// SetReservationTTL 在配置热更新时调整后续 prepare 的预占时长。
func (s *CheckoutService) SetReservationTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	s.ttl.Store(int64(ttl))
}

func (s *CheckoutService) ReservationTTL() time.Duration {
	return time.Duration(s.ttl.Load())
}

func (s *CheckoutService) now() time.Time {
	return s.deps.Reservations.Now()
}

func (s *CheckoutService) newContext(ctx context.Context, session *domain.CheckoutSession) *saga.CheckoutContext {
	return &saga.CheckoutContext{
		Ctx:          ctx,
		Tracer:       s.tracer,
		Now:          s.now,
		Session:      session,
		TTL:          s.ReservationTTL(),
		Runner:       s.deps.Runner,
		Sessions:     s.deps.Sessions,
		Orders:       s.deps.Orders,
		Reservations: s.deps.Reservations,
		Carts:        s.deps.Carts,
		Payment:      s.deps.Payment,
		Policy:       s.deps.Policy,
		Scheduler:    s.deps.Scheduler,
		Events:       s.deps.Events,
		LowStock:     s.deps.LowStock,
	}
}

// Prepare 校验购物车、预占库存并创建 RESERVED 会话。
func (s *CheckoutService) Prepare(ctx context.Context, req *PrepareRequest) (resp *PrepareResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Prepare")
	defer span.End()
	defer observe("prepare", time.Now(), &err)

	if req == nil || strings.TrimSpace(req.CartID) == "" {
		return nil, domain.NewValidationError("cart_id is required")
	}
	span.SetAttributes(attribute.String("cart.id", req.CartID))

	cart, err := s.deps.Carts.Get(ctx, req.CartID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errors.Wrapf(domain.ErrEmptyCart, "cart %s", req.CartID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "load cart %s", req.CartID)
	}
	if cart.Status == domain.CartCheckedOut || cart.IsEmpty() {
		return nil, errors.Wrapf(domain.ErrEmptyCart, "cart %s", req.CartID)
	}
	if req.CustomerID != "" && cart.CustomerID != "" && req.CustomerID != cart.CustomerID {
		return nil, domain.NewValidationError("cart %s does not belong to customer %s", cart.ID, req.CustomerID)
	}

	session, err := domain.NewCheckoutSession(cart, req.CustomerID, s.now())
	if err != nil {
		return nil, err
	}

	checkoutCtx := s.newContext(ctx, session)
	checkoutCtx.Cart = cart
	if err := s.buildPrepareChain().Handle(checkoutCtx); err != nil {
		checkoutCtx.TriggerCompensation(context.WithoutCancel(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare failed")
		logger.Ctx(ctx).Warn().Err(err).Str("cart", req.CartID).Msg("checkout prepare failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("checkout.session", session.ID))
	return &PrepareResponse{
		CheckoutSessionID: session.ID,
		Total:             session.Total,
		ExpiresAt:         session.ExpiresAt,
	}, nil
}

// Finalize 扣款并把预占转为订单。
func (s *CheckoutService) Finalize(ctx context.Context, req *FinalizeRequest) (resp *FinalizeResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Finalize")
	defer span.End()
	defer observe("finalize", time.Now(), &err)

	if req == nil || strings.TrimSpace(req.CheckoutSessionID) == "" {
		return nil, domain.NewValidationError("checkout_session_id is required")
	}
	if strings.TrimSpace(req.PaymentToken) == "" {
		return nil, domain.NewValidationError("payment_token is required")
	}
	span.SetAttributes(attribute.String("checkout.session", req.CheckoutSessionID))

	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}

	session, err := s.loadReserved(ctx, req.CheckoutSessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	checkoutCtx := s.newContext(ctx, session)
	checkoutCtx.PaymentToken = req.PaymentToken
	if err := s.buildFinalizeChain().Handle(checkoutCtx); err != nil {
		// 退款必须在请求超时或取消之后依然执行
		checkoutCtx.TriggerCompensation(context.WithoutCancel(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize failed")
		logger.Ctx(ctx).Warn().Err(err).Str("session", session.ID).Msg("checkout finalize failed")
		return nil, err
	}

	order := checkoutCtx.Order
	return &FinalizeResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
	}, nil
}

// Cancel 释放预占并把会话转为 CANCELLED。
func (s *CheckoutService) Cancel(ctx context.Context, req *CancelRequest) (err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Cancel")
	defer span.End()
	defer observe("cancel", time.Now(), &err)

	if req == nil || strings.TrimSpace(req.CheckoutSessionID) == "" {
		return domain.NewValidationError("checkout_session_id is required")
	}

	session, err := s.sessionInState(ctx, req.CheckoutSessionID, domain.StateReserved)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.newContext(ctx, session).ReleaseAs(ctx, domain.StateCancelled, "cancelled by customer"); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		return err
	}
	return nil
}

// Expire 由到期检查消费者调用。会话已结束时什么也不做；尚未到期则重新安排检查。
// 返回会话是否被本次调用转为 EXPIRED。
func (s *CheckoutService) Expire(ctx context.Context, sessionID string) (expired bool, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Expire", trace.WithAttributes(attribute.String("checkout.session", sessionID)))
	defer span.End()

	session, err := s.deps.Sessions.Get(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if session.State != domain.StateReserved {
		return false, nil
	}

	if !session.IsDue(s.now()) {
		if s.deps.Scheduler != nil {
			if err := s.deps.Scheduler.ScheduleExpiryCheck(ctx, session.ID, session.ExpiresAt); err != nil {
				span.RecordError(err)
				return false, err
			}
		}
		logger.Ctx(ctx).Debug().Str("session", session.ID).Time("expires_at", session.ExpiresAt).Msg("expiry check early, rescheduled")
		return false, nil
	}

	err = s.newContext(ctx, session).ReleaseAs(ctx, domain.StateExpired, "reservation ttl elapsed")
	if errors.Is(err, domain.ErrInvalidState) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	metrics.CheckoutOutcomes.WithLabelValues("expire", "expired").Inc()
	return true, nil
}

// ExpireGroups 是清扫器的回调：把预占组已被回收的 RESERVED 会话转为 EXPIRED。
func (s *CheckoutService) ExpireGroups(ctx context.Context, groupIDs []string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	sessions, err := s.deps.Sessions.ListReservedByGroups(dbctx.Context{Ctx: ctx}, groupIDs)
	if err != nil {
		return err
	}

	var lastErr error
	for i := range sessions {
		session := &sessions[i]
		err := s.newContext(ctx, session).ReleaseAs(ctx, domain.StateExpired, "reservation swept after ttl")
		if err == nil {
			metrics.CheckoutOutcomes.WithLabelValues("expire", "swept").Inc()
			continue
		}
		if errors.Is(err, domain.ErrInvalidState) {
			continue
		}
		logger.Ctx(ctx).Error().Err(err).Str("session", session.ID).Str("group", session.ReservationGroupID).Msg("failed to expire swept checkout session")
		lastErr = err
	}
	return lastErr
}

func (s *CheckoutService) Get(ctx context.Context, sessionID string) (*SessionResponse, error) {
	session, err := s.deps.Sessions.Get(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, err
	}
	return NewSessionResponse(session), nil
}

// loadReserved 读取会话，EXPIRED 会话报告为预占过期，其他非 RESERVED 状态报告为非法状态。
func (s *CheckoutService) loadReserved(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	session, err := s.deps.Sessions.Get(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State == domain.StateExpired {
		return nil, errors.Wrapf(domain.ErrReservationExpired, "checkout session %s", session.ID)
	}
	if session.State != domain.StateReserved {
		return nil, errors.Wrapf(domain.ErrInvalidState, "checkout session %s is %s", session.ID, session.State)
	}
	return session, nil
}

func (s *CheckoutService) sessionInState(ctx context.Context, sessionID string, want domain.State) (*domain.CheckoutSession, error) {
	session, err := s.deps.Sessions.Get(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != want {
		return nil, errors.Wrapf(domain.ErrInvalidState, "checkout session %s is %s", session.ID, session.State)
	}
	return session, nil
}

func (s *CheckoutService) buildPrepareChain() saga.Handler {
	admission := &saga.AdmissionHandler{}
	admission.
		SetNext(&saga.ReserveHandler{}).
		SetNext(&saga.ScheduleExpiryHandler{})
	return admission
}

func (s *CheckoutService) buildFinalizeChain() saga.Handler {
	check := &saga.ReservationCheckHandler{}
	check.
		SetNext(&saga.PaymentHandler{}).
		SetNext(&saga.CommitOrderHandler{}).
		SetNext(&saga.NotificationHandler{})
	return check
}

func observe(operation string, start time.Time, err *error) {
	metrics.CheckoutDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	metrics.CheckoutOutcomes.WithLabelValues(operation, outcomeOf(*err)).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, domain.ErrPaymentUnavailable):
		return "payment_unavailable"
	case errors.Is(err, domain.ErrReservationExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
