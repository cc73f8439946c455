package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/service/inventory/domain"
)

// GormProductRepository 是 domain.ProductRepository 的 GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) Create(dbc dbctx.Context, product *domain.Product) error {
	err := dbc.DB(r.db).Create(FromDomainProduct(product)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.NewValidationError("product %s already exists", product.SKU)
	}
	return errors.Wrapf(err, "create product %s", product.SKU)
}

func (r *GormProductRepository) FindByID(dbc dbctx.Context, id string) (*domain.Product, error) {
	return r.findOne(dbc.DB(r.db), "id = ?", id)
}

// FindByIDForUpdate 在调用方事务内锁定商品行后读取
func (r *GormProductRepository) FindByIDForUpdate(dbc dbctx.Context, id string) (*domain.Product, error) {
	return r.findOne(dbc.DB(r.db).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *GormProductRepository) FindBySKU(dbc dbctx.Context, sku string) (*domain.Product, error) {
	return r.findOne(dbc.DB(r.db), "sku = ?", sku)
}

func (r *GormProductRepository) findOne(tx *gorm.DB, cond string, arg string) (*domain.Product, error) {
	var model ProductModel
	if err := tx.Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "product %s", arg)
		}
		return nil, errors.Wrapf(err, "find product %s", arg)
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) List(dbc dbctx.Context, activeOnly bool, offset, limit int) ([]domain.Product, error) {
	q := dbc.DB(r.db).Model(&ProductModel{}).Order("sku").Offset(offset).Limit(limit)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var models []ProductModel
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	out := make([]domain.Product, 0, len(models))
	for i := range models {
		out = append(out, *ToDomainProduct(&models[i]))
	}
	return out, nil
}

func (r *GormProductRepository) Update(dbc dbctx.Context, product *domain.Product) error {
	// 用 map 更新，active=false 这类零值也会落库
	err := dbc.DB(r.db).Model(&ProductModel{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"name":   product.Name,
		"price":  product.Price,
		"active": product.Active,
	}).Error
	return errors.Wrapf(err, "update product %s", product.ID)
}
