package application

import (
	"time"

	"storefront/internal/service/inventory/domain"
)

// SetStockRequest 对应 PUT /admin/inventory/{sku}
type SetStockRequest struct {
	Quantity *int `json:"quantity"`
}

// AdjustStockRequest 对应 POST /admin/inventory/{sku}/adjust
type AdjustStockRequest struct {
	Delta int `json:"delta"`
}

// CreateProductRequest 对应 POST /admin/products，同时创建库存行
type CreateProductRequest struct {
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	Quantity          int    `json:"quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

// UpdateProductRequest 对应 PUT /admin/products/{id}，未给出的字段保持不变
type UpdateProductRequest struct {
	Name   *string `json:"name"`
	Price  *int64  `json:"price"`
	Active *bool   `json:"active"`
}

// ProductListResponse 是商品列表的外层包装
type ProductListResponse struct {
	Products []*ProductResponse `json:"products"`
}

type InventoryItemResponse struct {
	SKU               string    `json:"sku"`
	ProductID         string    `json:"product_id"`
	Quantity          int       `json:"quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	IsLowStock        bool      `json:"is_low_stock"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductResponse struct {
	ID        string                 `json:"id"`
	SKU       string                 `json:"sku"`
	Name      string                 `json:"name"`
	Price     int64                  `json:"price"`
	Active    bool                   `json:"active"`
	Inventory *InventoryItemResponse `json:"inventory,omitempty"`
}

func NewInventoryItemResponse(item *domain.InventoryItem) *InventoryItemResponse {
	return &InventoryItemResponse{
		SKU:               item.SKU,
		ProductID:         item.ProductID,
		Quantity:          item.Quantity,
		ReservedQuantity:  item.ReservedQuantity,
		AvailableQuantity: item.Available(),
		LowStockThreshold: item.LowStockThreshold,
		IsLowStock:        item.IsLowStock(),
		UpdatedAt:         item.UpdatedAt,
	}
}

func newInventoryItemResponses(items []domain.InventoryItem) []*InventoryItemResponse {
	out := make([]*InventoryItemResponse, 0, len(items))
	for i := range items {
		out = append(out, NewInventoryItemResponse(&items[i]))
	}
	return out
}

func NewProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:     p.ID,
		SKU:    p.SKU,
		Name:   p.Name,
		Price:  p.Price,
		Active: p.Active,
	}
}
