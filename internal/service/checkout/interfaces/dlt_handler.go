// internal/service/checkout/interfaces/dlt_handler.go
package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
)

// NewDltConsumer 监听死信队列并记录日志。
// DLT 中的消息总是直接提交，因为它们已经被“处理”了（即记录日志）。
func NewDltConsumer(reader mq.MessageReader) *mq.Consumer {
	return mq.NewConsumer("checkout-dlt", reader, func(ctx context.Context, msg kafka.Message) error {
		logDeadLetter(ctx, msg)
		return nil
	}, nil)
}

func logDeadLetter(ctx context.Context, msg kafka.Message) {
	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	// 使用结构化日志记录，便于后续分析
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", headers[mq.HeaderOriginalTopic]).
		Str("original_partition", headers[mq.HeaderOriginalPartition]).
		Str("original_offset", headers[mq.HeaderOriginalOffset]).
		Str("exception_fqcn", headers[mq.HeaderExceptionFqcn]).
		Str("exception_message", headers[mq.HeaderExceptionMessage]).
		Str("message_key", string(msg.Key)).
		Str("message_value", string(msg.Value)).
		Msg("Received a message in Dead Letter Topic")
}
