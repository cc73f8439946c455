package pushgateway

import (
	"context"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	invdomain "storefront/internal/service/inventory/domain"
)

// NewInventoryFeedConsumer 消费库存事件并原样（Envelope JSON）广播给所有在线的管理后台
func NewInventoryFeedConsumer(reader mq.MessageReader, hub *Hub) *mq.Consumer {
	return mq.NewConsumer("push-gateway-inventory", reader, InventoryFeedHandler(hub), nil)
}

func InventoryFeedHandler(hub *Hub) mq.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		env, err := mq.DecodeEnvelope(msg.Value)
		if err != nil {
			return err
		}
		switch env.Type {
		case invdomain.EventStockChanged, invdomain.EventLowStock:
		default:
			return nil
		}
		if err := hub.Broadcast(ctx, msg.Value); err != nil {
			return err
		}
		logger.Ctx(ctx).Debug().Str("type", env.Type).Int("clients", hub.Count()).Msg("inventory event pushed")
		return nil
	}
}
