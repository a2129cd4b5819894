package relational

import (
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/query"
	"gorm.io/gorm"
)

// Health checks backend connectivity (spec §4.5).
func (db *DB[M]) Health() error {
	sqlDB, err := db.gdb.DB()
	if err != nil {
		return dberrors.NewDriver(err, false)
	}
	if err := sqlDB.Ping(); err != nil {
		return dberrors.NewDriver(err, true)
	}
	return nil
}

// Transaction runs fn within a transaction scoped to this model,
// auto-injecting the tx-bound Database[M] and rolling back on error
// (spec §4.7's session semantics, surfaced here for single-model use
// without an explicit Session).
func (db *DB[M]) Transaction(fn func(txDB query.Database[M]) error) error {
	return db.gdb.Transaction(func(tx *gorm.DB) error {
		txDB := New[M](tx, db.dbctx)
		return fn(txDB)
	})
}

// TransactionFunc runs fn within a transaction spanning any number of
// model types; callers must WithTx(tx) each Database[M] manually.
func (db *DB[M]) TransactionFunc(fn func(tx any) error) error {
	return db.gdb.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}
