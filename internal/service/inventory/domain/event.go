package domain

import "context"

const (
	EventStockChanged = "inventory.stock_changed"
	EventLowStock     = "inventory.low_stock"
)

// StockChanged 在管理员修改库存后发布。
type StockChanged struct {
	SKU              string `json:"sku"`
	Quantity         int    `json:"quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
	Available        int    `json:"available"`
	Reason           string `json:"reason"`
}

// LowStockAlert 在某个 SKU 的可售数量降到阈值及以下时发布。
type LowStockAlert struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Threshold int    `json:"threshold"`
}

func NewLowStockAlert(item *InventoryItem) LowStockAlert {
	return LowStockAlert{SKU: item.SKU, Available: item.Available(), Threshold: item.LowStockThreshold}
}

func NewStockChanged(item *InventoryItem, reason string) StockChanged {
	return StockChanged{
		SKU:              item.SKU,
		Quantity:         item.Quantity,
		ReservedQuantity: item.ReservedQuantity,
		Available:        item.Available(),
		Reason:           reason,
	}
}

// EventPublisher 是库存事件的出站端口。
type EventPublisher interface {
	PublishStockChanged(ctx context.Context, event StockChanged) error
	PublishLowStock(ctx context.Context, alert LowStockAlert) error
}
