package domain

import (
	"time"

	"storefront/internal/pkg/dbctx"
)

// Ledger 是按 SKU 记录总量与预占量的账本。
// 所有变更都在调用方的事务中执行，并先锁定库存行。
type Ledger interface {
	TryReserve(dbc dbctx.Context, sku string, qty int) error
	Release(dbc dbctx.Context, sku string, qty int) error
	Commit(dbc dbctx.Context, sku string, qty int) error
	SetAbsolute(dbc dbctx.Context, sku string, quantity int) (*InventoryItem, error)
	Adjust(dbc dbctx.Context, sku string, delta int) (*InventoryItem, error)
	IsLowStock(dbc dbctx.Context, sku string) (bool, error)
	Get(dbc dbctx.Context, sku string) (*InventoryItem, error)
	List(dbc dbctx.Context) ([]InventoryItem, error)
	ListLowStock(dbc dbctx.Context) ([]InventoryItem, error)
	Create(dbc dbctx.Context, item *InventoryItem) error
}

// ReservationStore 持久化 StockReservation。
type ReservationStore interface {
	CreateBatch(dbc dbctx.Context, reservations []StockReservation) error
	// ListByGroup 按 SKU 升序返回组内预占；forUpdate 时锁定这些行
	ListByGroup(dbc dbctx.Context, groupID string, forUpdate bool) ([]StockReservation, error)
	// ListExpiredHeld 返回 expires_at < now 的 held 预占并加锁
	ListExpiredHeld(dbc dbctx.Context, now time.Time, limit int) ([]StockReservation, error)
	// Transition 仅更新仍处于 from 状态的行，返回实际更新的行数
	Transition(dbc dbctx.Context, ids []string, from, to ReservationStatus, at time.Time) (int64, error)
	SumHeld(dbc dbctx.Context, sku string) (int, error)
}

// ProductRepository 管理商品目录。
type ProductRepository interface {
	Create(dbc dbctx.Context, product *Product) error
	FindByID(dbc dbctx.Context, id string) (*Product, error)
	FindByIDForUpdate(dbc dbctx.Context, id string) (*Product, error)
	FindBySKU(dbc dbctx.Context, sku string) (*Product, error)
	// List 按 SKU 升序分页；activeOnly 时跳过已下架商品
	List(dbc dbctx.Context, activeOnly bool, offset, limit int) ([]Product, error)
	// Update 覆盖名称、价格与上架状态，SKU 不可变
	Update(dbc dbctx.Context, product *Product) error
}
