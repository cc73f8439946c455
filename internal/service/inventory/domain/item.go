package domain

import "time"

const DefaultLowStockThreshold = 10

// InventoryItem 是单个 SKU 的库存账本行，只会被修改，不会被删除。
type InventoryItem struct {
	SKU               string
	ProductID         string
	Quantity          int // 实际拥有的总库存
	ReservedQuantity  int // 被 held 预占占用的数量
	LowStockThreshold int
	UpdatedAt         time.Time
}

// Available 返回可售数量，不会为负。
func (i *InventoryItem) Available() int {
	if avail := i.Quantity - i.ReservedQuantity; avail > 0 {
		return avail
	}
	return 0
}

// IsLowStock 可售数量不高于阈值即视为低库存。
func (i *InventoryItem) IsLowStock() bool {
	return i.Available() <= i.LowStockThreshold
}

// Product 是商品目录中的一项，购物车加购时据此快照单价。
type Product struct {
	ID     string
	SKU    string
	Name   string
	Price  int64 // 以分为单位
	Active bool
}
