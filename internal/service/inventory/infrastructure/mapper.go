package infrastructure

import (
	"storefront/internal/service/inventory/domain"
)

// ToDomainInventoryItem 将数据库模型转换为领域模型
func ToDomainInventoryItem(model *InventoryItemModel) *domain.InventoryItem {
	if model == nil {
		return nil
	}
	return &domain.InventoryItem{
		SKU:               model.SKU,
		ProductID:         model.ProductID,
		Quantity:          model.Quantity,
		ReservedQuantity:  model.ReservedQuantity,
		LowStockThreshold: model.LowStockThreshold,
		UpdatedAt:         model.UpdatedAt,
	}
}

func toDomainInventoryItems(models []InventoryItemModel) []domain.InventoryItem {
	items := make([]domain.InventoryItem, 0, len(models))
	for i := range models {
		items = append(items, *ToDomainInventoryItem(&models[i]))
	}
	return items
}

func ToDomainProduct(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}
	return &domain.Product{
		ID:     model.ID,
		SKU:    model.SKU,
		Name:   model.Name,
		Price:  model.Price,
		Active: model.Active,
	}
}

func FromDomainProduct(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:     p.ID,
		SKU:    p.SKU,
		Name:   p.Name,
		Price:  p.Price,
		Active: p.Active,
	}
}

func ToDomainReservation(model *StockReservationModel) domain.StockReservation {
	return domain.StockReservation{
		ID:         model.ID,
		GroupID:    model.GroupID,
		CartID:     model.CartID,
		SKU:        model.SKU,
		Quantity:   model.Quantity,
		Status:     model.Status,
		CreatedAt:  model.CreatedAt,
		ExpiresAt:  model.ExpiresAt,
		ResolvedAt: model.ResolvedAt,
	}
}

func FromDomainReservation(r *domain.StockReservation) StockReservationModel {
	return StockReservationModel{
		ID:         r.ID,
		GroupID:    r.GroupID,
		CartID:     r.CartID,
		SKU:        r.SKU,
		Quantity:   r.Quantity,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
		ResolvedAt: r.ResolvedAt,
	}
}
