package database

import (
	"context"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/logger"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// TxRunner 是所有写路径共享的事务边界。
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

// RetryObserver 在每次因锁冲突重试时被调用（指标埋点）。
type RetryObserver func(attempt int, err error)

type gormTxRunner struct {
	db       *gorm.DB
	attempts int
	backoff  time.Duration
	observer RetryObserver
}

// NewGormTxRunner 返回基于 gorm 事务的执行器，死锁或锁等待超时时最多执行 attempts 次。
func NewGormTxRunner(db *gorm.DB, attempts int, observer RetryObserver) TxRunner {
	if attempts < 1 {
		attempts = 1
	}
	return &gormTxRunner{db: db, attempts: attempts, backoff: 20 * time.Millisecond, observer: observer}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return errors.New("transaction runner has nil db")
	}

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
		if err == nil || !IsRetryable(err) || attempt == r.attempts {
			return err
		}

		if r.observer != nil {
			r.observer(attempt, err)
		}
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// IsRetryable 判断错误是否为 MySQL 死锁（1213）或锁等待超时（1205）。
func IsRetryable(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}
