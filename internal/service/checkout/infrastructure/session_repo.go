package infrastructure

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/service/checkout/domain"
)

// GormSessionRepository 实现 domain.SessionRepository
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(dbc dbctx.Context, s *domain.CheckoutSession) error {
	if err := dbc.DB(r.db).Create(FromDomainSession(s)).Error; err != nil {
		return errors.Wrapf(err, "create checkout session %s", s.ID)
	}
	return nil
}

func (r *GormSessionRepository) Get(dbc dbctx.Context, id string) (*domain.CheckoutSession, error) {
	var model CheckoutSessionModel
	err := dbc.DB(r.db).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrNotFound, "checkout session %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load checkout session %s", id)
	}
	return ToDomainSession(&model), nil
}

// CompareAndSwap 以 WHERE id = ? AND state = ? 作为比较条件，影响行数为 0 说明状态已被并发修改
func (r *GormSessionRepository) CompareAndSwap(dbc dbctx.Context, s *domain.CheckoutSession, from domain.State) error {
	res := dbc.DB(r.db).Model(&CheckoutSessionModel{}).
		Where("id = ? AND state = ?", s.ID, string(from)).
		Updates(map[string]interface{}{
			"state":          string(s.State),
			"order_id":       s.OrderID,
			"failure_reason": s.FailureReason,
			"updated_at":     s.UpdatedAt,
			"resolved_at":    s.ResolvedAt,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update checkout session %s", s.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrInvalidState, "checkout session %s is no longer %s", s.ID, from)
	}
	return nil
}

func (r *GormSessionRepository) ListReservedByGroups(dbc dbctx.Context, groupIDs []string) ([]domain.CheckoutSession, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var models []CheckoutSessionModel
	err := dbc.DB(r.db).
		Where("reservation_group_id IN ? AND state = ?", groupIDs, string(domain.StateReserved)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list reserved checkout sessions")
	}
	out := make([]domain.CheckoutSession, 0, len(models))
	for i := range models {
		out = append(out, *ToDomainSession(&models[i]))
	}
	return out, nil
}

// ListReservedByCart 使用 SELECT ... FOR UPDATE。MySQL 下对 cart_id 索引区间加 next-key 锁，
// 两个并发 prepare 中后插入的一方会死锁回滚，重试时即可看到先提交的会话。
func (r *GormSessionRepository) ListReservedByCart(dbc dbctx.Context, cartID string) ([]domain.CheckoutSession, error) {
	var models []CheckoutSessionModel
	err := dbc.DB(r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cart_id = ? AND state = ?", cartID, string(domain.StateReserved)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list reserved checkout sessions of cart %s", cartID)
	}
	out := make([]domain.CheckoutSession, 0, len(models))
	for i := range models {
		out = append(out, *ToDomainSession(&models[i]))
	}
	return out, nil
}
