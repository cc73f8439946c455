package infrastructure

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"storefront/internal/service/checkout/domain"
)

type CheckoutSessionModel struct {
	ID                 string                                    `gorm:"primaryKey;type:varchar(36)"`
	CartID             string                                    `gorm:"type:varchar(64);index;not null"`
	CustomerID         string                                    `gorm:"type:varchar(64);index"`
	ReservationGroupID string                                    `gorm:"type:varchar(36);index"`
	State              string                                    `gorm:"type:varchar(16);index;not null"`
	Lines              datatypes.JSONType[[]domain.SessionLine] `gorm:"not null"`
	Total              int64                                     `gorm:"not null"`
	ExpiresAt          time.Time                                 `gorm:"not null"`
	OrderID            string                                    `gorm:"type:varchar(36)"`
	FailureReason      string                                    `gorm:"type:varchar(255)"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ResolvedAt         *time.Time
}

func (CheckoutSessionModel) TableName() string { return "checkout_sessions" }

type OrderModel struct {
	ID                string           `gorm:"primaryKey;type:varchar(36)"`
	OrderNumber       string           `gorm:"type:varchar(20);uniqueIndex;not null"`
	CustomerID        string           `gorm:"type:varchar(64);index"`
	CartID            string           `gorm:"type:varchar(64)"`
	CheckoutSessionID string           `gorm:"type:varchar(36);uniqueIndex;not null"`
	PaymentReference  string           `gorm:"type:varchar(64)"`
	PaymentStatus     string           `gorm:"type:varchar(16)"`
	Subtotal          int64            `gorm:"not null"`
	Tax               int64            `gorm:"not null"`
	Total             int64            `gorm:"not null"`
	Status            string           `gorm:"type:varchar(16)"`
	PaidAt            time.Time        `gorm:"not null"`
	CreatedAt         time.Time
	Items             []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	OrderID   string `gorm:"type:varchar(36);index;not null"`
	ProductID string `gorm:"type:varchar(36)"`
	SKU       string `gorm:"type:varchar(64);not null"`
	Name      string `gorm:"type:varchar(255)"`
	Quantity  int    `gorm:"not null"`
	UnitPrice int64  `gorm:"not null"`
	Subtotal  int64  `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// AutoMigrate 创建结账相关的表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CheckoutSessionModel{}, &OrderModel{}, &OrderItemModel{})
}
