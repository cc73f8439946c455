// internal/service/checkout/domain/order.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPaid     = "PAID"
	OrderStatusProcessing = "PROCESSING"
)

// Order 是 finalize 成功后创建的不可变订单聚合
type Order struct {
	ID                string
	OrderNumber       string
	CustomerID        string
	CartID            string
	CheckoutSessionID string
	PaymentReference  string
	PaymentStatus     string
	Subtotal          int64
	Tax               int64
	Total             int64
	Status            string
	PaidAt            time.Time
	CreatedAt         time.Time
	Items             []OrderItem
}

type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// NewOrderNumber 生成 ORD- 加 12 位大写十六进制的订单号
func NewOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[:12])
}

// NewOrderFromSession 工厂函数：只依据会话的 prepare 快照生成订单
func NewOrderFromSession(s *CheckoutSession, paymentReference string, now time.Time) *Order {
	o := &Order{
		ID:                uuid.NewString(),
		OrderNumber:       NewOrderNumber(),
		CustomerID:        s.CustomerID,
		CartID:            s.CartID,
		CheckoutSessionID: s.ID,
		PaymentReference:  paymentReference,
		PaymentStatus:     PaymentStatusPaid,
		Status:            OrderStatusProcessing,
		PaidAt:            now,
		CreatedAt:         now,
	}
	for _, l := range s.Lines {
		item := OrderItem{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		}
		o.Items = append(o.Items, item)
		o.Subtotal += item.Subtotal
	}
	o.Total = o.Subtotal + o.Tax
	return o
}
