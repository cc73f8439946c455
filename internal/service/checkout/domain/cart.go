package domain

import "time"

type CartStatus string

const (
	CartActive     CartStatus = "active"
	CartCheckedOut CartStatus = "checked_out"
)

// CartItem 中的单价是加入购物车时从商品目录快照的
type CartItem struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Cart struct {
	ID         string
	CustomerID string
	Status     CartStatus
	Items      []CartItem
	UpdatedAt  time.Time
}

func (c *Cart) IsEmpty() bool {
	if c == nil {
		return true
	}
	for _, item := range c.Items {
		if item.Quantity > 0 {
			return false
		}
	}
	return true
}

func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

func (c *Cart) TotalQuantity() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
