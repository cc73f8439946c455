package port

import (
	"context"
	"time"

	"storefront/internal/service/checkout/domain"
)

// EventPublisher 发布结账领域事件。
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event domain.OrderPlaced) error
	PublishCheckoutExpired(ctx context.Context, event domain.CheckoutExpired) error
}

// ExpiryScheduler 安排在 dueAt 之后对会话做一次到期检查。
type ExpiryScheduler interface {
	ScheduleExpiryCheck(ctx context.Context, sessionID string, dueAt time.Time) error
}

// AdmissionPolicy 在预占前校验购物车，拒绝时返回 ValidationError。
type AdmissionPolicy interface {
	Admit(ctx context.Context, cart *domain.Cart) error
}

// LowStockNotifier 在库存扣减后检查并告警低库存 SKU。
type LowStockNotifier interface {
	AlertIfLowStock(ctx context.Context, skus []string) []string
}
