package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	checkoutdomain "storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
	"storefront/internal/service/notification/domain"
)

const defaultDedupTTL = 24 * time.Hour

// Recipients 解析收件人；管理员列表支持热更新，所以每次发送时读取
type Recipients interface {
	Customer(customerID string) string
	Admins() []string
}

// Dispatcher 把业务事件转换成邮件并发送
type Dispatcher struct {
	gateway    domain.EmailGateway
	dedup      domain.Deduplicator // 可以为 nil
	recipients Recipients
	dedupTTL   time.Duration
	tracer     trace.Tracer
}

func NewDispatcher(gateway domain.EmailGateway, dedup domain.Deduplicator, recipients Recipients) *Dispatcher {
	return &Dispatcher{
		gateway:    gateway,
		dedup:      dedup,
		recipients: recipients,
		dedupTTL:   defaultDedupTTL,
		tracer:     otel.Tracer("notification"),
	}
}

func (d *Dispatcher) OrderPlaced(ctx context.Context, e checkoutdomain.OrderPlaced) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Thank you for your order %s.\n\n", e.OrderNumber)
	for _, item := range e.Items {
		fmt.Fprintf(&body, "  %d x %s (%s) @ %s\n", item.Quantity, item.Name, item.SKU, domain.FormatAmount(item.UnitPrice))
	}
	fmt.Fprintf(&body, "\nTotal charged: %s\n", domain.FormatAmount(e.Total))

	return d.send(ctx, domain.Notification{
		Kind:      domain.KindOrderConfirmation,
		Recipient: d.recipients.Customer(e.CustomerID),
		Subject:   "Order " + e.OrderNumber + " confirmed",
		Body:      body.String(),
		DedupKey:  "order:" + e.OrderID,
	})
}

func (d *Dispatcher) CheckoutExpired(ctx context.Context, e checkoutdomain.CheckoutExpired) error {
	if e.CustomerID == "" {
		logger.Ctx(ctx).Debug().Str("session", e.CheckoutSessionID).Msg("anonymous checkout expired, nobody to notify")
		return nil
	}
	return d.send(ctx, domain.Notification{
		Kind:      domain.KindCheckoutExpired,
		Recipient: d.recipients.Customer(e.CustomerID),
		Subject:   "Your checkout has expired",
		Body:      fmt.Sprintf("The items held for cart %s were released at %s. They are still in your cart if you want to try again.\n", e.CartID, e.ExpiredAt.UTC().Format(time.RFC1123)),
		DedupKey:  "expired:" + e.CheckoutSessionID,
	})
}

// LowStock 通知所有管理员；单个管理员发送失败不影响其他人，但会返回错误以便重投
func (d *Dispatcher) LowStock(ctx context.Context, a invdomain.LowStockAlert) error {
	admins := d.recipients.Admins()
	if len(admins) == 0 {
		logger.Ctx(ctx).Warn().Str("sku", a.SKU).Msg("low stock alert dropped, no admin recipients configured")
		return nil
	}
	var lastErr error
	for _, admin := range admins {
		err := d.send(ctx, domain.Notification{
			Kind:      domain.KindLowStock,
			Recipient: admin,
			Subject:   "Low stock: " + a.SKU,
			Body:      fmt.Sprintf("SKU %s has %d units available (threshold %d).\n", a.SKU, a.Available, a.Threshold),
			// 同一 SKU 在同一可售数量下只告警一次
			DedupKey: fmt.Sprintf("lowstock:%s:%d:%s", a.SKU, a.Available, admin),
		})
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (d *Dispatcher) send(ctx context.Context, n domain.Notification) error {
	ctx, span := d.tracer.Start(ctx, "notification.Send", trace.WithAttributes(
		attribute.String("notification.kind", string(n.Kind)),
		attribute.String("notification.recipient", n.Recipient),
	))
	defer span.End()

	if d.dedup != nil && n.DedupKey != "" {
		first, err := d.dedup.Claim(ctx, n.DedupKey, d.dedupTTL)
		if err != nil {
			// 去重存储不可用时宁可重复发送也不漏发
			logger.Ctx(ctx).Warn().Err(err).Str("key", n.DedupKey).Msg("dedup unavailable, sending anyway")
		} else if !first {
			span.AddEvent("DuplicateSkipped")
			logger.Ctx(ctx).Info().Str("key", n.DedupKey).Msg("notification already sent, skipping")
			return nil
		}
	}

	if err := d.gateway.Send(ctx, n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if d.dedup != nil && n.DedupKey != "" {
			if rerr := d.dedup.Release(ctx, n.DedupKey); rerr != nil {
				logger.Ctx(ctx).Warn().Err(rerr).Str("key", n.DedupKey).Msg("failed to release dedup key")
			}
		}
		return errors.Wrapf(err, "send %s to %s", n.Kind, n.Recipient)
	}
	span.AddEvent("Notification sent successfully")
	return nil
}
