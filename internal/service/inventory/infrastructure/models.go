package infrastructure

import (
	"time"

	"gorm.io/gorm"

	"storefront/internal/service/inventory/domain"
)

// InventoryItemModel 对应 inventory_items 表
type InventoryItemModel struct {
	ID                uint   `gorm:"primaryKey"`
	SKU               string `gorm:"size:64;uniqueIndex;not null"`
	ProductID         string `gorm:"size:36;index"`
	Quantity          int    `gorm:"not null;default:0"`
	ReservedQuantity  int    `gorm:"not null;default:0"`
	LowStockThreshold int    `gorm:"not null;default:10"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// ProductModel 对应 products 表
type ProductModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	SKU       string `gorm:"size:64;uniqueIndex;not null"`
	Name      string `gorm:"size:255;not null"`
	Price     int64  `gorm:"not null"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProductModel) TableName() string {
	return "products"
}

// StockReservationModel 对应 stock_reservations 表
type StockReservationModel struct {
	ID         string                   `gorm:"primaryKey;size:36"`
	GroupID    string                   `gorm:"size:36;index;not null"`
	CartID     string                   `gorm:"size:64;index"`
	SKU        string                   `gorm:"size:64;index;not null"`
	Quantity   int                      `gorm:"not null"`
	Status     domain.ReservationStatus `gorm:"size:16;index:idx_reservation_status_expiry,priority:1;not null"`
	CreatedAt  time.Time
	ExpiresAt  time.Time `gorm:"index:idx_reservation_status_expiry,priority:2;not null"`
	ResolvedAt *time.Time
}

func (StockReservationModel) TableName() string {
	return "stock_reservations"
}

// AutoMigrate 创建或更新库存相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&InventoryItemModel{}, &ProductModel{}, &StockReservationModel{})
}
