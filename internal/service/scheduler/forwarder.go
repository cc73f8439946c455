// Package scheduler 实现延迟主题的转发：消息到期后投递到 real-topic 头指定的业务主题。
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// Forwarder 负责一个延迟级别（一个延迟主题）。
// 消息带 delay-timestamp 头时按该时间投递，否则按消息写入时间加上级别的固定延迟。
// 队头消息未到期时阻塞等待，同一主题内的消息按到期时间顺序写入，因此不会饿死后面的消息。
type Forwarder struct {
	level  string
	delay  time.Duration
	reader mq.MessageReader
	writer mq.MessageWriter // 不绑定 Topic，目标主题由每条消息决定

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	backoff time.Duration
	tracer  trace.Tracer
}

type Option func(*Forwarder)

// WithClock 替换时间来源与等待函数，测试中用于跳过真实等待。
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Forwarder) {
		f.now = now
		f.sleep = sleep
	}
}

func WithBackoff(d time.Duration) Option {
	return func(f *Forwarder) { f.backoff = d }
}

func NewForwarder(level string, delay time.Duration, reader mq.MessageReader, writer mq.MessageWriter, opts ...Option) *Forwarder {
	f := &Forwarder{
		level:   level,
		delay:   delay,
		reader:  reader,
		writer:  writer,
		now:     time.Now,
		sleep:   sleepCtx,
		backoff: time.Second,
		tracer:  otel.Tracer("delay-scheduler"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run 阻塞直到 ctx 被取消。
func (f *Forwarder) Run(ctx context.Context) error {
	log := logger.Ctx(ctx).With().Str("level", f.level).Logger()
	log.Info().Dur("delay", f.delay).Msg("✅ delay forwarder started")
	for {
		msg, err := f.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("🛑 delay forwarder shutting down")
				return nil
			}
			log.Error().Err(err).Msg("could not fetch delayed message, retrying")
			if f.sleep(ctx, f.backoff) != nil {
				return nil
			}
			continue
		}

		if err := f.forward(ctx, msg); err != nil {
			// 只有 ctx 取消会走到这里，未提交的消息在重启后重新投递
			log.Info().Err(err).Int64("offset", msg.Offset).Msg("🛑 delay forwarder stopped before message was due")
			return nil
		}
	}
}

// forward 等待消息到期、投递、提交；投递失败会一直重试，保证不丢消息。
func (f *Forwarder) forward(ctx context.Context, msg kafka.Message) error {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	msgCtx, span := f.tracer.Start(msgCtx, "scheduler.Forward", trace.WithAttributes(
		attribute.String("delay.level", f.level),
		attribute.Int64("messaging.kafka.message.offset", msg.Offset),
	))
	defer span.End()
	log := logger.Ctx(msgCtx)

	realTopic := mq.GetHeader(msg.Headers, mq.HeaderRealTopic)
	if realTopic == "" {
		// 这种消息永远无法投递，直接提交，否则会一直被重复消费
		log.Error().Str("level", f.level).Int64("offset", msg.Offset).Msg("real-topic header missing, skipping")
		span.SetStatus(codes.Error, "missing real-topic header")
		f.commit(msgCtx, msg)
		return nil
	}
	span.SetAttributes(attribute.String("real.topic", realTopic))

	dueAt := f.dueAt(msgCtx, msg)
	if wait := dueAt.Sub(f.now()); wait > 0 {
		span.AddEvent("HeadMessageNotDue", trace.WithAttributes(attribute.String("due_at", dueAt.Format(time.RFC3339))))
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
	}

	out := kafka.Message{
		Topic:   realTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: stripDelayHeaders(msg.Headers),
	}
	mq.InjectTraceContext(msgCtx, &out.Headers)
	for {
		err := f.writer.WriteMessages(msgCtx, out)
		if err == nil {
			break
		}
		span.RecordError(err)
		log.Error().Err(err).Str("real_topic", realTopic).Msg("failed to publish to real topic, retrying")
		if err := f.sleep(ctx, f.backoff); err != nil {
			span.SetStatus(codes.Error, "stopped while retrying publish")
			return err
		}
	}

	f.commit(msgCtx, msg)
	span.AddEvent("MessagePublishedAndCommitted")
	log.Debug().Str("real_topic", realTopic).Str("key", string(msg.Key)).Msg("delayed message forwarded")
	return nil
}

func (f *Forwarder) dueAt(ctx context.Context, msg kafka.Message) time.Time {
	if raw := mq.GetHeader(msg.Headers, mq.HeaderDelayTimestamp); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err == nil {
			return at
		}
		logger.Ctx(ctx).Warn().Err(err).Str("header", raw).Msg("invalid delay-timestamp, falling back to level delay")
	}
	return msg.Time.Add(f.delay)
}

func (f *Forwarder) commit(ctx context.Context, msg kafka.Message) {
	if err := f.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("level", f.level).Int64("offset", msg.Offset).Msg("failed to commit delayed message")
	}
}

func (f *Forwarder) Close() error {
	return f.reader.Close()
}

func stripDelayHeaders(headers []kafka.Header) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for _, h := range headers {
		if h.Key == mq.HeaderRealTopic || h.Key == mq.HeaderDelayTimestamp {
			continue
		}
		out = append(out, h)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-t.C:
		return nil
	}
}
