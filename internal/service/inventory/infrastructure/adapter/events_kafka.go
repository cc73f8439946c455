package adapter

import (
	"context"
	"time"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/inventory/domain"
)

// InventoryEventKafkaAdapter 实现了 domain.EventPublisher，事件以 SKU 作为消息 Key。
type InventoryEventKafkaAdapter struct {
	writer mq.MessageWriter
	now    func() time.Time
}

func NewInventoryEventKafkaAdapter(writer mq.MessageWriter) *InventoryEventKafkaAdapter {
	return &InventoryEventKafkaAdapter{writer: writer, now: time.Now}
}

func (a *InventoryEventKafkaAdapter) PublishStockChanged(ctx context.Context, event domain.StockChanged) error {
	return a.publish(ctx, event.SKU, domain.EventStockChanged, event)
}

func (a *InventoryEventKafkaAdapter) PublishLowStock(ctx context.Context, alert domain.LowStockAlert) error {
	return a.publish(ctx, alert.SKU, domain.EventLowStock, alert)
}

func (a *InventoryEventKafkaAdapter) publish(ctx context.Context, key, eventType string, payload interface{}) error {
	value, err := mq.EncodeEnvelope(eventType, a.now(), payload)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(key), value)
}

// Close 关闭底层的Kafka writer。
func (a *InventoryEventKafkaAdapter) Close() error {
	return a.writer.Close()
}
