package infrastructure

import (
	"time"

	"gorm.io/datatypes"

	"storefront/internal/service/checkout/domain"
)

func FromDomainSession(s *domain.CheckoutSession) *CheckoutSessionModel {
	return &CheckoutSessionModel{
		ID:                 s.ID,
		CartID:             s.CartID,
		CustomerID:         s.CustomerID,
		ReservationGroupID: s.ReservationGroupID,
		State:              string(s.State),
		Lines:              datatypes.NewJSONType(s.Lines),
		Total:              s.Total,
		ExpiresAt:          s.ExpiresAt,
		OrderID:            s.OrderID,
		FailureReason:      s.FailureReason,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
		ResolvedAt:         s.ResolvedAt,
	}
}

func ToDomainSession(m *CheckoutSessionModel) *domain.CheckoutSession {
	return &domain.CheckoutSession{
		ID:                 m.ID,
		CartID:             m.CartID,
		CustomerID:         m.CustomerID,
		ReservationGroupID: m.ReservationGroupID,
		State:              domain.State(m.State),
		Lines:              m.Lines.Data(),
		Total:              m.Total,
		ExpiresAt:          m.ExpiresAt.UTC(),
		OrderID:            m.OrderID,
		FailureReason:      m.FailureReason,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
		ResolvedAt:         utcPtr(m.ResolvedAt),
	}
}

func FromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		CustomerID:        o.CustomerID,
		CartID:            o.CartID,
		CheckoutSessionID: o.CheckoutSessionID,
		PaymentReference:  o.PaymentReference,
		PaymentStatus:     o.PaymentStatus,
		Subtotal:          o.Subtotal,
		Tax:               o.Tax,
		Total:             o.Total,
		Status:            o.Status,
		PaidAt:            o.PaidAt,
		CreatedAt:         o.CreatedAt,
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ID:        item.ID,
			OrderID:   o.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return m
}

func ToDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:                m.ID,
		OrderNumber:       m.OrderNumber,
		CustomerID:        m.CustomerID,
		CartID:            m.CartID,
		CheckoutSessionID: m.CheckoutSessionID,
		PaymentReference:  m.PaymentReference,
		PaymentStatus:     m.PaymentStatus,
		Subtotal:          m.Subtotal,
		Tax:               m.Tax,
		Total:             m.Total,
		Status:            m.Status,
		PaidAt:            m.PaidAt.UTC(),
		CreatedAt:         m.CreatedAt.UTC(),
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return o
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
