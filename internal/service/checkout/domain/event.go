// internal/service/checkout/domain/event.go
package domain

import "time"

const (
	EventOrderPlaced     = "order.placed"
	EventCheckoutExpired = "checkout.expired"
	EventExpiryCheck     = "checkout.expiry_check"
)

// OrderPlaced 在订单创建并提交后发布，通知服务据此发送邮件
type OrderPlaced struct {
	OrderID           string            `json:"order_id"`
	OrderNumber       string            `json:"order_number"`
	CheckoutSessionID string            `json:"checkout_session_id"`
	CustomerID        string            `json:"customer_id"`
	Total             int64             `json:"total"`
	Items             []OrderPlacedItem `json:"items"`
	PaidAt            time.Time         `json:"paid_at"`
}

type OrderPlacedItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func NewOrderPlaced(o *Order) OrderPlaced {
	e := OrderPlaced{
		OrderID:           o.ID,
		OrderNumber:       o.OrderNumber,
		CheckoutSessionID: o.CheckoutSessionID,
		CustomerID:        o.CustomerID,
		Total:             o.Total,
		PaidAt:            o.PaidAt,
	}
	for _, item := range o.Items {
		e.Items = append(e.Items, OrderPlacedItem{SKU: item.SKU, Name: item.Name, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return e
}

// CheckoutExpired 在会话因超时被回收后发布
type CheckoutExpired struct {
	CheckoutSessionID  string    `json:"checkout_session_id"`
	CartID             string    `json:"cart_id"`
	CustomerID         string    `json:"customer_id"`
	ReservationGroupID string    `json:"reservation_group_id"`
	ExpiredAt          time.Time `json:"expired_at"`
}

func NewCheckoutExpired(s *CheckoutSession, at time.Time) CheckoutExpired {
	return CheckoutExpired{
		CheckoutSessionID:  s.ID,
		CartID:             s.CartID,
		CustomerID:         s.CustomerID,
		ReservationGroupID: s.ReservationGroupID,
		ExpiredAt:          at,
	}
}

// ExpiryCheck 是经延迟主题投递的到期检查任务
type ExpiryCheck struct {
	TraceID           string    `json:"trace_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	DueAt             time.Time `json:"due_at"`
}
