// Package reservation 管理针对库存账本的限时预占：创建、提交、释放与过期回收。
package reservation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/inventory/domain"
)

const defaultSweepBatch = 200

// Manager 的每个操作都有一个 *Tx 变体，供调用方与自己的写操作组合在同一事务中。
type Manager struct {
	runner     database.TxRunner
	ledger     domain.Ledger
	store      domain.ReservationStore
	now        func() time.Time
	tracer     trace.Tracer
	sweepBatch int
}

type Option func(*Manager)

// WithClock 替换时间来源（测试中使用）。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithSweepBatch(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sweepBatch = n
		}
	}
}

func NewManager(runner database.TxRunner, ledger domain.Ledger, store domain.ReservationStore, opts ...Option) *Manager {
	m := &Manager{
		runner:     runner,
		ledger:     ledger,
		store:      store,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		tracer:     otel.Tracer("inventory.reservation"),
		sweepBatch: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now 返回 Manager 使用的当前时间。
func (m *Manager) Now() time.Time {
	return m.now()
}

// Reserve 在单个事务中为购物车的所有行创建 held 预占；任一 SKU 失败则整体回滚。
func (m *Manager) Reserve(ctx context.Context, cartID string, lines []domain.Line, ttl time.Duration) (*domain.ReservationGroup, error) {
	var group *domain.ReservationGroup
	err := m.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		group, err = m.ReserveTx(dbc, cartID, lines, ttl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (m *Manager) ReserveTx(dbc dbctx.Context, cartID string, lines []domain.Line, ttl time.Duration) (*domain.ReservationGroup, error) {
	ctx, span := m.tracer.Start(dbc.Ctx, "reservation.Reserve", trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer span.End()
	dbc.Ctx = ctx

	if ttl < 0 {
		return nil, domain.NewValidationError("reservation ttl cannot be negative")
	}
	merged := domain.MergeLines(lines)
	if len(merged) == 0 {
		return nil, domain.NewValidationError("nothing to reserve")
	}

	// 按 SKU 升序加锁，避免并发预占之间互相死锁
	for _, line := range merged {
		if err := m.ledger.TryReserve(dbc, line.SKU, line.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reserve failed")
			return nil, err
		}
	}

	now := m.now()
	group := &domain.ReservationGroup{
		ID:        uuid.NewString(),
		CartID:    cartID,
		ExpiresAt: now.Add(ttl),
	}
	for _, line := range merged {
		group.Reservations = append(group.Reservations, domain.StockReservation{
			ID:        uuid.NewString(),
			GroupID:   group.ID,
			CartID:    cartID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			Status:    domain.ReservationHeld,
			CreatedAt: now,
			ExpiresAt: group.ExpiresAt,
		})
	}
	if err := m.store.CreateBatch(dbc, group.Reservations); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("reservation.group", group.ID), attribute.Int("reservation.lines", len(merged)))
	metrics.ReservationTransitions.WithLabelValues(string(domain.ReservationHeld)).Add(float64(len(merged)))
	logger.Ctx(ctx).Info().
		Str("group", group.ID).
		Str("cart", cartID).
		Time("expires_at", group.ExpiresAt).
		Msg("stock reserved")
	return group, nil
}

// Commit 把组内全部 held 预占转为 committed 并在账本上扣减库存。
func (m *Manager) Commit(ctx context.Context, groupID string) error {
	return m.runner.InTx(ctx, func(dbc dbctx.Context) error {
		return m.CommitTx(dbc, groupID)
	})
}

func (m *Manager) CommitTx(dbc dbctx.Context, groupID string) error {
	ctx, span := m.tracer.Start(dbc.Ctx, "reservation.Commit", trace.WithAttributes(attribute.String("reservation.group", groupID)))
	defer span.End()
	dbc.Ctx = ctx

	reservations, err := m.lockGroup(dbc, groupID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := m.now()
	for i := range reservations {
		r := &reservations[i]
		switch {
		case r.Status == domain.ReservationReleased || r.IsExpired(now):
			err = errors.Wrapf(domain.ErrReservationExpired, "reservation %s for %s", r.ID, r.SKU)
		case r.Status != domain.ReservationHeld:
			err = errors.Wrapf(domain.ErrInvalidState, "reservation %s is %s", r.ID, r.Status)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "group not committable")
			return err
		}
	}

	for i := range reservations {
		if err := m.ledger.Commit(dbc, reservations[i].SKU, reservations[i].Quantity); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if err := m.transition(dbc, reservations, domain.ReservationCommitted, now); err != nil {
		span.RecordError(err)
		return err
	}

	logger.Ctx(ctx).Info().Str("group", groupID).Msg("reservation committed")
	return nil
}

// Release 释放组内仍为 held 的预占，终态预占被跳过，重复调用无副作用。
// 返回本次实际释放的预占数量。
func (m *Manager) Release(ctx context.Context, groupID string) (int, error) {
	var released int
	err := m.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		released, err = m.ReleaseTx(dbc, groupID)
		return err
	})
	return released, err
}

func (m *Manager) ReleaseTx(dbc dbctx.Context, groupID string) (int, error) {
	ctx, span := m.tracer.Start(dbc.Ctx, "reservation.Release", trace.WithAttributes(attribute.String("reservation.group", groupID)))
	defer span.End()
	dbc.Ctx = ctx

	reservations, err := m.lockGroup(dbc, groupID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	held := filterHeld(reservations)
	if err := m.releaseHeld(dbc, held, m.now()); err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("reservation.released", len(held)))
	if len(held) > 0 {
		logger.Ctx(ctx).Info().Str("group", groupID).Int("released", len(held)).Msg("reservation released")
	}
	return len(held), nil
}

// SweepExpired 分批释放所有 expires_at < now 的 held 预占，返回受影响的组 ID（升序）。
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	ctx, span := m.tracer.Start(ctx, "reservation.SweepExpired")
	defer span.End()

	groups := make(map[string]struct{})
	for {
		var batch []domain.StockReservation
		err := m.runner.InTx(ctx, func(dbc dbctx.Context) error {
			var err error
			batch, err = m.store.ListExpiredHeld(dbc, now, m.sweepBatch)
			if err != nil {
				return err
			}
			return m.releaseHeld(dbc, batch, m.now())
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep failed")
			return sortedKeys(groups), err
		}
		for _, r := range batch {
			groups[r.GroupID] = struct{}{}
		}
		if len(batch) < m.sweepBatch {
			break
		}
	}

	ids := sortedKeys(groups)
	span.SetAttributes(attribute.Int("reservation.groups", len(ids)))
	if len(ids) > 0 {
		logger.Ctx(ctx).Info().Int("groups", len(ids)).Msg("expired reservations swept")
	}
	return ids, nil
}

// Group 读取一个预占组，用于结账前检查；不加锁。
func (m *Manager) Group(ctx context.Context, groupID string) (*domain.ReservationGroup, error) {
	return m.GroupTx(dbctx.Context{Ctx: ctx}, groupID)
}

func (m *Manager) GroupTx(dbc dbctx.Context, groupID string) (*domain.ReservationGroup, error) {
	reservations, err := m.store.ListByGroup(dbc, groupID, false)
	if err != nil {
		return nil, err
	}
	return toGroup(groupID, reservations)
}

// SumHeld 返回某 SKU 上所有 held 预占的数量之和，用于账本一致性检查。
func (m *Manager) SumHeld(ctx context.Context, sku string) (int, error) {
	return m.store.SumHeld(dbctx.Context{Ctx: ctx}, sku)
}

func (m *Manager) lockGroup(dbc dbctx.Context, groupID string) ([]domain.StockReservation, error) {
	reservations, err := m.store.ListByGroup(dbc, groupID, true)
	if err != nil {
		return nil, err
	}
	if len(reservations) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation group %s", groupID)
	}
	return reservations, nil
}

// releaseHeld 按 SKU 升序归还账本，再把预占从 held 改为 released。
func (m *Manager) releaseHeld(dbc dbctx.Context, held []domain.StockReservation, at time.Time) error {
	if len(held) == 0 {
		return nil
	}
	sort.SliceStable(held, func(i, j int) bool { return held[i].SKU < held[j].SKU })
	for i := range held {
		if err := m.ledger.Release(dbc, held[i].SKU, held[i].Quantity); err != nil {
			return err
		}
	}
	return m.transition(dbc, held, domain.ReservationReleased, at)
}

func (m *Manager) transition(dbc dbctx.Context, reservations []domain.StockReservation, to domain.ReservationStatus, at time.Time) error {
	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.ID)
	}
	n, err := m.store.Transition(dbc, ids, domain.ReservationHeld, to, at)
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		// 行已加锁，数量不一致说明存在未加锁的并发写入
		return errors.Wrapf(domain.ErrInvalidState, "expected %d held reservations, updated %d", len(ids), n)
	}
	metrics.ReservationTransitions.WithLabelValues(string(to)).Add(float64(n))
	return nil
}

func filterHeld(reservations []domain.StockReservation) []domain.StockReservation {
	held := make([]domain.StockReservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Status == domain.ReservationHeld {
			held = append(held, r)
		}
	}
	return held
}

func toGroup(groupID string, reservations []domain.StockReservation) (*domain.ReservationGroup, error) {
	if len(reservations) == 0 {
		return nil, errors.Wrapf(domain.ErrNotFound, "reservation group %s", groupID)
	}
	g := &domain.ReservationGroup{
		ID:           groupID,
		CartID:       reservations[0].CartID,
		ExpiresAt:    reservations[0].ExpiresAt,
		Reservations: reservations,
	}
	return g, nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
