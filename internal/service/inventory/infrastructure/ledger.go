package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/inventory/domain"
)

// GormLedger 是 domain.Ledger 的 GORM 实现。
// 每个变更先 SELECT ... FOR UPDATE 锁定库存行，再用带条件的 UPDATE 做比较并交换。
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) lockItem(dbc dbctx.Context, sku string) (*InventoryItemModel, error) {
	var item InventoryItemModel
	err := dbc.DB(l.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku = ?", sku).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "inventory item %s", sku)
		}
		return nil, errors.Wrapf(err, "lock inventory item %s", sku)
	}
	return &item, nil
}

// TryReserve 可售数量不足时立即返回 InsufficientStockError，不会等待库存。
func (l *GormLedger) TryReserve(dbc dbctx.Context, sku string, qty int) error {
	if qty <= 0 {
		return domain.NewValidationError("reserve quantity for %s must be positive, got %d", sku, qty)
	}
	item, err := l.lockItem(dbc, sku)
	if err != nil {
		return err
	}
	if avail := item.Quantity - item.ReservedQuantity; avail < qty {
		metrics.LedgerConflicts.WithLabelValues("insufficient_stock").Inc()
		return &domain.InsufficientStockError{SKU: sku, Requested: qty, Available: max(avail, 0)}
	}

	res := dbc.DB(l.db).Model(&InventoryItemModel{}).
		Where("sku = ? AND quantity - reserved_quantity >= ?", sku, qty).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "reserve %s", sku)
	}
	if res.RowsAffected == 0 {
		metrics.LedgerConflicts.WithLabelValues("cas_miss").Inc()
		return &domain.InsufficientStockError{SKU: sku, Requested: qty, Available: max(item.Quantity-item.ReservedQuantity, 0)}
	}
	return nil
}

// Release 归还预占量，结果不低于 0。
func (l *GormLedger) Release(dbc dbctx.Context, sku string, qty int) error {
	if qty <= 0 {
		return nil
	}
	item, err := l.lockItem(dbc, sku)
	if err != nil {
		return err
	}
	if item.ReservedQuantity < qty {
		logger.Ctx(dbc.Ctx).Warn().
			Str("sku", sku).
			Int("reserved", item.ReservedQuantity).
			Int("release", qty).
			Msg("release exceeds reserved quantity, flooring at zero")
	}

	err = dbc.DB(l.db).Model(&InventoryItemModel{}).
		Where("sku = ?", sku).
		Update("reserved_quantity", gorm.Expr("CASE WHEN reserved_quantity >= ? THEN reserved_quantity - ? ELSE 0 END", qty, qty)).
		Error
	return errors.Wrapf(err, "release %s", sku)
}

// Commit 把预占转为实际扣减：quantity 与 reserved_quantity 同时减少。
func (l *GormLedger) Commit(dbc dbctx.Context, sku string, qty int) error {
	item, err := l.lockItem(dbc, sku)
	if err != nil {
		return err
	}
	if item.ReservedQuantity < qty || item.Quantity < qty {
		metrics.LedgerConflicts.WithLabelValues("commit_underflow").Inc()
		return errors.Wrapf(domain.ErrInvalidState, "commit %d of %s with only %d reserved", qty, sku, item.ReservedQuantity)
	}

	res := dbc.DB(l.db).Model(&InventoryItemModel{}).
		Where("sku = ? AND reserved_quantity >= ? AND quantity >= ?", sku, qty, qty).
		Updates(map[string]interface{}{
			"quantity":          gorm.Expr("quantity - ?", qty),
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "commit %s", sku)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrInvalidState, "commit %s lost the row guard", sku)
	}
	return nil
}

// SetAbsolute 设置总库存；不允许低于 0 或低于当前预占量。
func (l *GormLedger) SetAbsolute(dbc dbctx.Context, sku string, quantity int) (*domain.InventoryItem, error) {
	item, err := l.lockItem(dbc, sku)
	if err != nil {
		return nil, err
	}
	return l.writeQuantity(dbc, item, quantity)
}

// Adjust 按增量调整总库存，约束与 SetAbsolute 相同。
func (l *GormLedger) Adjust(dbc dbctx.Context, sku string, delta int) (*domain.InventoryItem, error) {
	item, err := l.lockItem(dbc, sku)
	if err != nil {
		return nil, err
	}
	return l.writeQuantity(dbc, item, item.Quantity+delta)
}

func (l *GormLedger) writeQuantity(dbc dbctx.Context, item *InventoryItemModel, quantity int) (*domain.InventoryItem, error) {
	if quantity < 0 {
		return nil, domain.NewValidationError("quantity for %s cannot be negative", item.SKU)
	}
	if quantity < item.ReservedQuantity {
		return nil, domain.NewValidationError("quantity %d for %s is below reserved %d", quantity, item.SKU, item.ReservedQuantity)
	}

	// 行已加锁，不依赖 RowsAffected（值未变化时 MySQL 可能返回 0）
	err := dbc.DB(l.db).Model(&InventoryItemModel{}).
		Where("sku = ? AND reserved_quantity <= ?", item.SKU, quantity).
		Update("quantity", quantity).Error
	if err != nil {
		return nil, errors.Wrapf(err, "set quantity of %s", item.SKU)
	}
	return l.Get(dbc, item.SKU)
}

func (l *GormLedger) IsLowStock(dbc dbctx.Context, sku string) (bool, error) {
	item, err := l.Get(dbc, sku)
	if err != nil {
		return false, err
	}
	return item.IsLowStock(), nil
}

func (l *GormLedger) Get(dbc dbctx.Context, sku string) (*domain.InventoryItem, error) {
	var item InventoryItemModel
	if err := dbc.DB(l.db).Where("sku = ?", sku).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "inventory item %s", sku)
		}
		return nil, errors.Wrapf(err, "get inventory item %s", sku)
	}
	return ToDomainInventoryItem(&item), nil
}

func (l *GormLedger) List(dbc dbctx.Context) ([]domain.InventoryItem, error) {
	var models []InventoryItemModel
	if err := dbc.DB(l.db).Order("sku").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list inventory")
	}
	return toDomainInventoryItems(models), nil
}

func (l *GormLedger) ListLowStock(dbc dbctx.Context) ([]domain.InventoryItem, error) {
	var models []InventoryItemModel
	err := dbc.DB(l.db).
		Where("quantity - reserved_quantity <= low_stock_threshold").
		Order("sku").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}
	return toDomainInventoryItems(models), nil
}

func (l *GormLedger) Create(dbc dbctx.Context, item *domain.InventoryItem) error {
	if item.Quantity < 0 {
		return domain.NewValidationError("initial quantity for %s cannot be negative", item.SKU)
	}
	threshold := item.LowStockThreshold
	if threshold <= 0 {
		threshold = domain.DefaultLowStockThreshold
	}
	model := &InventoryItemModel{
		SKU:               item.SKU,
		ProductID:         item.ProductID,
		Quantity:          item.Quantity,
		LowStockThreshold: threshold,
	}
	return errors.Wrapf(dbc.DB(l.db).Create(model).Error, "create inventory item %s", item.SKU)
}
