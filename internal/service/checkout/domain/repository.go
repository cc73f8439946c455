// internal/service/checkout/domain/repository.go
package domain

import "storefront/internal/pkg/dbctx"

// SessionRepository 定义了结账会话的持久化接口，由基础设施层实现。
type SessionRepository interface {
	Create(dbc dbctx.Context, s *CheckoutSession) error
	Get(dbc dbctx.Context, id string) (*CheckoutSession, error)
	// CompareAndSwap 仅当库中状态仍为 from 时写入 s 的状态与结果字段，否则返回 ErrInvalidState
	CompareAndSwap(dbc dbctx.Context, s *CheckoutSession, from State) error
	ListReservedByGroups(dbc dbctx.Context, groupIDs []string) ([]CheckoutSession, error)
	// ListReservedByCart 加行锁读取购物车仍处于 RESERVED 的会话
	ListReservedByCart(dbc dbctx.Context, cartID string) ([]CheckoutSession, error)
}

// OrderRepository 定义了订单聚合的持久化接口。
type OrderRepository interface {
	Create(dbc dbctx.Context, o *Order) error
	FindByID(dbc dbctx.Context, id string) (*Order, error)
	FindBySession(dbc dbctx.Context, sessionID string) (*Order, error)
}
