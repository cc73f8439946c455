package adapter

import (
	"context"
	"time"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/checkout/domain"
)

// CheckoutEventKafkaAdapter 实现了 port.EventPublisher。
type CheckoutEventKafkaAdapter struct {
	writer mq.MessageWriter
	now    func() time.Time
}

func NewCheckoutEventKafkaAdapter(writer mq.MessageWriter) *CheckoutEventKafkaAdapter {
	return &CheckoutEventKafkaAdapter{writer: writer, now: time.Now}
}

func (a *CheckoutEventKafkaAdapter) PublishOrderPlaced(ctx context.Context, event domain.OrderPlaced) error {
	return a.publish(ctx, event.CheckoutSessionID, domain.EventOrderPlaced, event)
}

func (a *CheckoutEventKafkaAdapter) PublishCheckoutExpired(ctx context.Context, event domain.CheckoutExpired) error {
	return a.publish(ctx, event.CheckoutSessionID, domain.EventCheckoutExpired, event)
}

func (a *CheckoutEventKafkaAdapter) publish(ctx context.Context, key, eventType string, payload interface{}) error {
	value, err := mq.EncodeEnvelope(eventType, a.now(), payload)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(key), value)
}

func (a *CheckoutEventKafkaAdapter) Close() error {
	return a.writer.Close()
}
