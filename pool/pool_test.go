package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/pool"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return gdb
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	gdb := openTestDB(t)
	p, err := pool.New(gdb, pool.Config{}, nil)
	require.NoError(t, err)
	defer p.Close()

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.Equal(t, consts.DefaultPoolMaxConns, sqlDB.Stats().MaxOpenConnections)
}

func TestAcquireSucceedsOnLiveConnection(t *testing.T) {
	gdb := openTestDB(t)
	p, err := pool.New(gdb, pool.Config{AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p.Close()

	_, cancel, err := p.Acquire(context.Background())
	require.NoError(t, err)
	cancel()
}

func TestAcquireReturnsPoolExhaustedOnCanceledContext(t *testing.T) {
	gdb := openTestDB(t)
	p, err := pool.New(gdb, pool.Config{AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Acquire(ctx)
	require.Error(t, err)
	require.True(t, dberrors.KindIs(err, dberrors.KindPoolExhausted))
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, gdb.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	p, err := pool.New(gdb, pool.Config{AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p.Close()

	err = p.WithTransaction(context.Background(), consts.IsolationReadCommitted, func(tx *gorm.DB) error {
		return tx.Exec(`INSERT INTO widgets (name) VALUES (?)`, "cog").Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, gdb.Table("widgets").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, gdb.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	p, err := pool.New(gdb, pool.Config{AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p.Close()

	err = p.WithTransaction(context.Background(), consts.IsolationReadCommitted, func(tx *gorm.DB) error {
		if err := tx.Exec(`INSERT INTO widgets (name) VALUES (?)`, "cog").Error; err != nil {
			return err
		}
		return dberrors.NewValidation("name", "forced failure")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, gdb.Table("widgets").Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	gdb := openTestDB(t)
	require.NoError(t, gdb.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`).Error)
	p, err := pool.New(gdb, pool.Config{AcquireTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer p.Close()

	require.Panics(t, func() {
		_ = p.WithTransaction(context.Background(), consts.IsolationReadCommitted, func(tx *gorm.DB) error {
			require.NoError(t, tx.Exec(`INSERT INTO widgets (name) VALUES (?)`, "cog").Error)
			panic("boom")
		})
	})

	var count int64
	require.NoError(t, gdb.Table("widgets").Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestCloseIsIdempotent(t *testing.T) {
	gdb := openTestDB(t)
	p, err := pool.New(gdb, pool.Config{}, nil)
	require.NoError(t, err)
	p.Close()
	require.NotPanics(t, p.Close)
}
