package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/service/checkout/domain"
)

// GormOrderRepository 实现 domain.OrderRepository，订单行随订单一起写入
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 写入订单与订单行；同一会话重复创建订单会违反唯一索引，报告为非法状态
func (r *GormOrderRepository) Create(dbc dbctx.Context, o *domain.Order) error {
	err := dbc.DB(r.db).Create(FromDomainOrder(o)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(domain.ErrInvalidState, "order already exists for checkout session %s", o.CheckoutSessionID)
	}
	if err != nil {
		return errors.Wrapf(err, "create order %s", o.OrderNumber)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(dbc dbctx.Context, id string) (*domain.Order, error) {
	return r.findOne(dbc, "id = ?", id)
}

func (r *GormOrderRepository) FindBySession(dbc dbctx.Context, sessionID string) (*domain.Order, error) {
	return r.findOne(dbc, "checkout_session_id = ?", sessionID)
}

func (r *GormOrderRepository) findOne(dbc dbctx.Context, query string, arg string) (*domain.Order, error) {
	var model OrderModel
	err := dbc.DB(r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sku") }).
		Where(query, arg).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "order %s", arg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load order %s", arg)
	}
	return ToDomainOrder(&model), nil
}
