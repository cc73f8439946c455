package database

import (
	"context"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/testutil"
)

type counter struct {
	ID    uint `gorm:"primaryKey"`
	Value int
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	db := testutil.DB(t, &counter{})
	runner := NewGormTxRunner(db, 3, nil)
	ctx := context.Background()

	require.NoError(t, runner.InTx(ctx, func(dbc dbctx.Context) error {
		return dbc.Tx.Create(&counter{ID: 1, Value: 1}).Error
	}))

	boom := errors.New("boom")
	err := runner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := dbc.Tx.Model(&counter{}).Where("id = ?", 1).Update("value", 99).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var c counter
	require.NoError(t, db.First(&c, 1).Error)
	assert.Equal(t, 1, c.Value)
}

func TestInTxRetriesDeadlock(t *testing.T) {
	db := testutil.DB(t, &counter{})
	var retries []int
	runner := NewGormTxRunner(db, 3, func(attempt int, _ error) { retries = append(retries, attempt) })

	calls := 0
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		calls++
		if calls < 3 {
			return &mysqldriver.MySQLError{Number: mysqlErrDeadlock, Message: "Deadlock found"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestInTxGivesUpAfterAttempts(t *testing.T) {
	db := testutil.DB(t, &counter{})
	runner := NewGormTxRunner(db, 2, nil)

	calls := 0
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		calls++
		return &mysqldriver.MySQLError{Number: mysqlErrLockWaitTimeout}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.Wrap(&mysqldriver.MySQLError{Number: 1213}, "update")))
	assert.True(t, IsRetryable(&mysqldriver.MySQLError{Number: 1205}))
	assert.False(t, IsRetryable(&mysqldriver.MySQLError{Number: 1062}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
