package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/database"
	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/testutil"
	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/infrastructure"
)

// mysqlFixture 在真实 MySQL 上运行 Manager，SKU 带随机后缀以便共享数据库
type mysqlFixture struct {
	ctx     context.Context
	clock   *testutil.Clock
	ledger  *infrastructure.GormLedger
	manager *Manager
	retries atomic.Int32
}

func newMySQLFixture(t *testing.T, stock map[string]int) (*mysqlFixture, map[string]string) {
	t.Helper()
	db := testutil.MySQL(t, &infrastructure.InventoryItemModel{}, &infrastructure.ProductModel{}, &infrastructure.StockReservationModel{})

	f := &mysqlFixture{
		ctx:    context.Background(),
		clock:  testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		ledger: infrastructure.NewGormLedger(db),
	}
	runner := database.NewGormTxRunner(db, 8, func(int, error) { f.retries.Add(1) })
	f.manager = NewManager(runner, f.ledger, infrastructure.NewGormReservationStore(db), WithClock(f.clock.Now))

	suffix := uuid.NewString()[:8]
	skus := make(map[string]string, len(stock))
	var created []string
	for name, qty := range stock {
		sku := name + "-" + suffix
		skus[name] = sku
		created = append(created, sku)
		require.NoError(t, f.ledger.Create(dbctx.Context{Ctx: f.ctx}, &domain.InventoryItem{SKU: sku, Quantity: qty}))
	}
	t.Cleanup(func() {
		db.Where("sku IN ?", created).Delete(&infrastructure.StockReservationModel{})
		db.Where("sku IN ?", created).Delete(&infrastructure.InventoryItemModel{})
	})
	return f, skus
}

func (f *mysqlFixture) assertLedgerConsistent(t *testing.T, sku string) *domain.InventoryItem {
	t.Helper()
	item, err := f.ledger.Get(dbctx.Context{Ctx: f.ctx}, sku)
	require.NoError(t, err)
	held, err := f.manager.SumHeld(f.ctx, sku)
	require.NoError(t, err)
	assert.Equal(t, held, item.ReservedQuantity, "reserved of %s", sku)
	assert.GreaterOrEqual(t, item.ReservedQuantity, 0)
	assert.LessOrEqual(t, item.ReservedQuantity, item.Quantity)
	return item
}

func TestMySQLConcurrentReservesNeverOversell(t *testing.T) {
	f, skus := newMySQLFixture(t, map[string]int{"A": 5, "B": 8})

	const workers = 24
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		succeeded atomic.Int32
		short     atomic.Int32
		mu        sync.Mutex
		unexpect  []error
	)
	for i := 0; i < workers; i++ {
		lines := []domain.Line{{SKU: skus["A"], Quantity: 1}, {SKU: skus["B"], Quantity: 1}}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		wg.Add(1)
		go func(cartID string) {
			defer wg.Done()
			<-start
			_, err := f.manager.Reserve(f.ctx, cartID, lines, time.Minute)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				short.Add(1)
			default:
				mu.Lock()
				unexpect = append(unexpect, err)
				mu.Unlock()
			}
		}("cart-" + uuid.NewString())
	}
	close(start)
	wg.Wait()

	require.Empty(t, unexpect)
	assert.EqualValues(t, 5, succeeded.Load())
	assert.EqualValues(t, workers-5, short.Load())

	a := f.assertLedgerConsistent(t, skus["A"])
	b := f.assertLedgerConsistent(t, skus["B"])
	assert.Equal(t, 5, a.ReservedQuantity)
	assert.Equal(t, 5, b.ReservedQuantity)
	t.Logf("transaction retries: %d", f.retries.Load())
}

// 提交与清扫争抢同一个预占组：恰好一方生效，另一方看到终态
func TestMySQLCommitRacingSweepOnOneGroup(t *testing.T) {
	f, skus := newMySQLFixture(t, map[string]int{"A": 200})
	sku := skus["A"]

	const rounds = 15
	committed := 0
	for round := 0; round < rounds; round++ {
		group, err := f.manager.Reserve(f.ctx, "cart-"+uuid.NewString(), []domain.Line{{SKU: sku, Quantity: 3}}, time.Minute)
		require.NoError(t, err)

		// Manager 的时钟仍在有效期内，清扫传入的时刻已过期，两边都有资格处理这个组
		sweepAt := f.clock.Now().Add(2 * time.Minute)

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			commitErr error
			swept     []string
			sweepErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			commitErr = f.manager.Commit(f.ctx, group.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			swept, sweepErr = f.manager.SweepExpired(f.ctx, sweepAt)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, sweepErr, "round %d", round)
		loaded, err := f.manager.Group(f.ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Reservations, 1)
		status := loaded.Reservations[0].Status

		if commitErr == nil {
			committed++
			assert.Equal(t, domain.ReservationCommitted, status, "round %d", round)
			assert.NotContains(t, swept, group.ID, "round %d: committed group must not be swept", round)
		} else {
			assert.ErrorIs(t, commitErr, domain.ErrReservationExpired, "round %d", round)
			assert.Equal(t, domain.ReservationReleased, status, "round %d", round)
			assert.Contains(t, swept, group.ID, "round %d", round)
		}
	}

	item := f.assertLedgerConsistent(t, sku)
	assert.Equal(t, 0, item.ReservedQuantity)
	assert.Equal(t, 200-3*committed, item.Quantity, "only committed rounds consume stock")
	t.Logf("committed %d/%d rounds, transaction retries: %d", committed, rounds, f.retries.Load())
}

func TestMySQLReleaseRacingCommitIsExclusive(t *testing.T) {
	f, skus := newMySQLFixture(t, map[string]int{"A": 50})
	sku := skus["A"]

	const rounds = 10
	for round := 0; round < rounds; round++ {
		group, err := f.manager.Reserve(f.ctx, "cart-"+uuid.NewString(), []domain.Line{{SKU: sku, Quantity: 2}}, time.Minute)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			start     = make(chan struct{})
			commitErr error
			released  int
			relErr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			commitErr = f.manager.Commit(f.ctx, group.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			released, relErr = f.manager.Release(f.ctx, group.ID)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, relErr, "round %d", round)
		if commitErr == nil {
			assert.Equal(t, 0, released, "round %d: release after commit is a no-op", round)
		} else {
			assert.ErrorIs(t, commitErr, domain.ErrReservationExpired, "round %d", round)
			assert.Equal(t, 1, released, "round %d", round)
		}
	}
	item := f.assertLedgerConsistent(t, sku)
	assert.Equal(t, 0, item.ReservedQuantity)
}
