package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	checkoutdomain "storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
	"storefront/internal/service/notification/application"
)

var tracer = otel.Tracer("notification-service")

// NewEventConsumer 消费结账或库存事件主题，一个主题一个消费者
func NewEventConsumer(name string, reader mq.MessageReader, dispatcher *application.Dispatcher, failures *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer(name, reader, EventHandler(dispatcher), failures)
}

// EventHandler 按 Envelope.Type 分发；不关心的事件类型直接忽略
func EventHandler(dispatcher *application.Dispatcher) mq.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		ctx, span := tracer.Start(ctx, "notification-service.ProcessEvent",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
				attribute.Int("messaging.kafka.partition", msg.Partition),
				attribute.Int64("messaging.kafka.message.offset", msg.Offset),
				attribute.String("messaging.kafka.message.key", string(msg.Key)),
			))
		defer span.End()

		env, err := mq.DecodeEnvelope(msg.Value)
		if err != nil {
			span.RecordError(err)
			return err
		}
		span.SetAttributes(attribute.String("event.type", env.Type))

		switch env.Type {
		case checkoutdomain.EventOrderPlaced:
			var e checkoutdomain.OrderPlaced
			if err := json.Unmarshal(env.Payload, &e); err != nil {
				return errors.Wrap(err, "decode order placed")
			}
			return dispatcher.OrderPlaced(ctx, e)
		case checkoutdomain.EventCheckoutExpired:
			var e checkoutdomain.CheckoutExpired
			if err := json.Unmarshal(env.Payload, &e); err != nil {
				return errors.Wrap(err, "decode checkout expired")
			}
			return dispatcher.CheckoutExpired(ctx, e)
		case invdomain.EventLowStock:
			var a invdomain.LowStockAlert
			if err := json.Unmarshal(env.Payload, &a); err != nil {
				return errors.Wrap(err, "decode low stock alert")
			}
			return dispatcher.LowStock(ctx, a)
		default:
			logger.Ctx(ctx).Debug().Str("type", env.Type).Msg("ignoring event")
			return nil
		}
	}
}
