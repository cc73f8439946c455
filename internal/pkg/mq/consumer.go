package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
)

// HandleFunc 处理一条消息，返回错误时消息被转入死信队列。
type HandleFunc func(ctx context.Context, msg kafka.Message) error

// Consumer 是通用的消费循环：FetchMessage → 恢复追踪上下文 → 处理 → 失败转 DLT → 提交 Offset。
type Consumer struct {
	name     string
	reader   MessageReader
	handle   HandleFunc
	failures *FailureHandler // 为 nil 时失败消息只记录日志
	backoff  time.Duration
}

func NewConsumer(name string, reader MessageReader, handle HandleFunc, failures *FailureHandler) *Consumer {
	return &Consumer{
		name:     name,
		reader:   reader,
		handle:   handle,
		failures: failures,
		backoff:  time.Second,
	}
}

// Run 阻塞直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("✅ Kafka consumer started")
	for {
		// 使用 FetchMessage 而不是 ReadMessage，处理完成后再提交 Offset
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("consumer", c.name).Msg("🛑 Kafka consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("could not fetch message, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		msgCtx := ExtractTraceContext(ctx, msg.Headers)
		if err := c.handle(msgCtx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).
				Str("consumer", c.name).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("message processing failed")
			if c.failures != nil {
				c.failures.Handle(msgCtx, msg, err)
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("failed to commit message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
