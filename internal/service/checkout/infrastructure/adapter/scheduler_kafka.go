package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/checkout/domain"
)

// ExpirySchedulerKafkaAdapter 实现了 port.ExpiryScheduler。
// 任务写入延迟主题，由 delay-scheduler 在 delay-timestamp 之后转发到 realTopic。
type ExpirySchedulerKafkaAdapter struct {
	delayWriter mq.MessageWriter
	realTopic   string
}

func NewExpirySchedulerKafkaAdapter(delayWriter mq.MessageWriter, realTopic string) *ExpirySchedulerKafkaAdapter {
	return &ExpirySchedulerKafkaAdapter{delayWriter: delayWriter, realTopic: realTopic}
}

func (a *ExpirySchedulerKafkaAdapter) ScheduleExpiryCheck(ctx context.Context, sessionID string, dueAt time.Time) error {
	task := domain.ExpiryCheck{
		TraceID:           trace.SpanFromContext(ctx).SpanContext().TraceID().String(),
		CheckoutSessionID: sessionID,
		DueAt:             dueAt.UTC(),
	}
	value, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "encode expiry check")
	}

	// 预占在 dueAt 之后才算过期，多留一秒避免检查到达过早
	deliverAt := dueAt.Add(time.Second).UTC().Format(time.RFC3339)
	return mq.ProduceMessage(ctx, a.delayWriter, []byte(sessionID), value,
		kafka.Header{Key: mq.HeaderRealTopic, Value: []byte(a.realTopic)},
		kafka.Header{Key: mq.HeaderDelayTimestamp, Value: []byte(deliverAt)},
	)
}

func (a *ExpirySchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}
