package interfaces

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/checkout/domain"
)

// SessionExpirer 由 application.CheckoutService 实现
type SessionExpirer interface {
	Expire(ctx context.Context, sessionID string) (bool, error)
}

// NewExpiryCheckConsumer 消费由 delay-scheduler 转发的到期检查任务，处理失败的消息进入 DLT。
func NewExpiryCheckConsumer(reader mq.MessageReader, expirer SessionExpirer, failures *mq.FailureHandler) *mq.Consumer {
	return mq.NewConsumer("checkout-expiry-check", reader, ExpiryCheckHandler(expirer), failures)
}

func ExpiryCheckHandler(expirer SessionExpirer) mq.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var task domain.ExpiryCheck
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			return errors.Wrap(err, "decode expiry check")
		}
		if task.CheckoutSessionID == "" {
			return errors.New("expiry check without checkout session id")
		}

		expired, err := expirer.Expire(ctx, task.CheckoutSessionID)
		if err != nil {
			return errors.Wrapf(err, "expire checkout session %s", task.CheckoutSessionID)
		}
		if expired {
			logger.Ctx(ctx).Info().Str("session", task.CheckoutSessionID).Msg("checkout session expired by scheduled check")
		}
		return nil
	}
}
