package infrastructure

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/service/inventory/domain"
)

// GormReservationStore 是 domain.ReservationStore 的 GORM 实现
type GormReservationStore struct {
	db *gorm.DB
}

func NewGormReservationStore(db *gorm.DB) *GormReservationStore {
	return &GormReservationStore{db: db}
}

func (s *GormReservationStore) CreateBatch(dbc dbctx.Context, reservations []domain.StockReservation) error {
	if len(reservations) == 0 {
		return nil
	}
	models := make([]StockReservationModel, 0, len(reservations))
	for i := range reservations {
		models = append(models, FromDomainReservation(&reservations[i]))
	}
	return errors.Wrap(dbc.DB(s.db).Create(&models).Error, "insert reservations")
}

func (s *GormReservationStore) ListByGroup(dbc dbctx.Context, groupID string, forUpdate bool) ([]domain.StockReservation, error) {
	q := dbc.DB(s.db).Where("group_id = ?", groupID).Order("sku")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var models []StockReservationModel
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list reservations of group %s", groupID)
	}
	return toDomainReservations(models), nil
}

func (s *GormReservationStore) ListExpiredHeld(dbc dbctx.Context, now time.Time, limit int) ([]domain.StockReservation, error) {
	var models []StockReservationModel
	err := dbc.DB(s.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND expires_at < ?", domain.ReservationHeld, now).
		Order("expires_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}
	return toDomainReservations(models), nil
}

func (s *GormReservationStore) Transition(dbc dbctx.Context, ids []string, from, to domain.ReservationStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(s.db).Model(&StockReservationModel{}).
		Where("id IN ? AND status = ?", ids, from).
		Updates(map[string]interface{}{"status": to, "resolved_at": at})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "transition reservations %s -> %s", from, to)
	}
	return res.RowsAffected, nil
}

func (s *GormReservationStore) SumHeld(dbc dbctx.Context, sku string) (int, error) {
	var total int
	err := dbc.DB(s.db).Model(&StockReservationModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("sku = ? AND status = ?", sku, domain.ReservationHeld).
		Scan(&total).Error
	return total, errors.Wrapf(err, "sum held reservations of %s", sku)
}

func toDomainReservations(models []StockReservationModel) []domain.StockReservation {
	out := make([]domain.StockReservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out
}
