// Package pool implements the Connection & Pool Manager (spec §4.5):
// bounded acquire/release around the relational backend's underlying
// *sql.DB pool, isolation-level-aware transaction scopes, and periodic
// idle-connection health checks.
package pool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config configures one pool (spec §6 DB_POOL_MIN/MAX/ACQUIRE_TIMEOUT_MS).
type Config struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	HealthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinConns <= 0 {
		c.MinConns = consts.DefaultPoolMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = consts.DefaultPoolMaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = time.Duration(consts.DefaultPoolAcquireTimeoutMS) * time.Millisecond
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	return c
}

// Pool wraps a *gorm.DB's underlying *sql.DB, applying the configured
// bounds and exposing acquire-bounded health/transaction helpers.
type Pool struct {
	cfg Config
	db  *gorm.DB
	log *zap.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New wires cfg onto db's connection pool (spec §4.5 pool contract) and
// starts the background idle-connection health checker.
func New(db *gorm.DB, cfg Config, log *zap.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dberrors.NewDriver(err, false)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MinConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	p := &Pool{cfg: cfg, db: db, log: log, stopCh: make(chan struct{})}
	go p.healthLoop(sqlDB)
	return p, nil
}

func (p *Pool) healthLoop(sqlDB *sql.DB) {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.AcquireTimeout)
			err := sqlDB.PingContext(ctx)
			cancel()
			if err != nil && p.log != nil {
				p.log.Warn("pool health check failed", zap.Error(err))
			}
		}
	}
}

// Close stops the health-check loop. It does not close the underlying
// *sql.DB, which outlives the Pool if shared with other components.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}

// Acquire bounds a connection acquisition to cfg.AcquireTimeout,
// returning PoolExhausted on timeout (spec §4.5).
func (p *Pool) Acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, nil, dberrors.NewDriver(err, false)
	}
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	if err := sqlDB.PingContext(acquireCtx); err != nil {
		cancel()
		return nil, nil, dberrors.NewPoolExhausted()
	}
	return acquireCtx, cancel, nil
}

// isolationLevel maps the engine's IsolationLevel to gorm's sql.TxOptions.
func isolationLevel(level consts.IsolationLevel) sql.IsolationLevel {
	switch level {
	case consts.IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case consts.IsolationReadCommitted:
		return sql.LevelReadCommitted
	case consts.IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case consts.IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// BeginTx acquires a connection and issues BEGIN at the requested
// isolation level. The transaction is bound to ctx, not to the acquire
// timeout. Commit/Rollback on the returned *gorm.DB are those of the
// underlying *sql.Tx: a second call returns sql.ErrTxDone instead of
// being a no-op.
func (p *Pool) BeginTx(ctx context.Context, level consts.IsolationLevel) (*gorm.DB, error) {
	_, cancel, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	tx := p.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: isolationLevel(level)})
	if tx.Error != nil {
		return nil, dberrors.NewDriver(tx.Error, true)
	}
	return tx, nil
}

// WithTransaction runs fn inside a transaction at the given isolation
// level, committing on success and rolling back on panic, error, or
// context cancellation (spec §4.5 auto-rollback on scope exit).
func (p *Pool) WithTransaction(ctx context.Context, level consts.IsolationLevel, fn func(tx *gorm.DB) error) (err error) {
	tx, err := p.BeginTx(ctx, level)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil && p.log != nil {
			p.log.Error("rollback after error failed", zap.Error(rbErr))
		}
		return err
	}
	if cErr := tx.Commit().Error; cErr != nil {
		return dberrors.NewDriver(cErr, true)
	}
	return nil
}
