// Package relational implements Database[M] against PostgreSQL and
// SQLite via gorm.io/gorm (spec §2 relational backend), generalizing
// the teacher's database.database[M] to the engine's FilterExpr/
// QueryPlan query layer and Copy-on-Write dirty-bitmap update path.
package relational

import (
	"reflect"
	"sync"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/logger"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"gorm.io/gorm"
)

// DB implements query.Database[M] against a *gorm.DB connection.
type DB[M types.Model] struct {
	gdb  *gorm.DB
	desc *types.ModelDescriptor
	dbctx *types.DatabaseContext

	mu sync.Mutex

	tableName   string
	batchSize   int
	enablePurge *bool
	ordered     *bool
	debug       bool
	dryRun      bool
	noHook      bool

	expandStrategy query.ExpandStrategy
	expandNames    []string
}

var _ query.Database[types.Model] = (*DB[types.Model])(nil)

// New builds a Database[M] bound to gdb, reading M's frozen descriptor
// from the model registry. dbctx may be nil (defaults to an empty
// DatabaseContext).
func New[M types.Model](gdb *gorm.DB, dbctx *types.DatabaseContext) *DB[M] {
	desc := model.DescriptorOf[M]()
	if dbctx == nil {
		dbctx = types.NewDatabaseContext(nil)
	}
	return &DB[M]{gdb: gdb, desc: desc, dbctx: dbctx}
}

// reset restores per-call options to their defaults. Every terminal
// method (Create, List, Count, ...) must defer this; WithXxx option
// setters never call it.
func (db *DB[M]) reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tableName = ""
	db.batchSize = 0
	db.enablePurge = nil
	db.ordered = nil
	db.debug = false
	db.dryRun = false
	db.noHook = false
	db.expandStrategy = 0
	db.expandNames = nil
}

func (db *DB[M]) session() *gorm.DB {
	s := db.gdb.Session(&gorm.Session{DryRun: db.dryRun})
	if db.debug {
		s = s.Debug()
	}
	name := db.table()
	return s.Table(name)
}

func (db *DB[M]) table() string {
	if db.tableName != "" {
		return db.tableName
	}
	return db.desc.TableName
}

func (db *DB[M]) purge(m M) bool {
	if db.enablePurge != nil {
		return *db.enablePurge
	}
	return m.Purge()
}

func (db *DB[M]) log() *logger.Logger {
	return logger.Relational.WithDatabaseContext(db.dbctx, consts.Phase(""))
}

func (db *DB[M]) WithDB(handle any) query.Database[M] {
	g, ok := handle.(*gorm.DB)
	if !ok || g == nil {
		return db
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.gdb = g
	return db
}

func (db *DB[M]) WithTx(tx any) query.Database[M] {
	g, ok := tx.(*gorm.DB)
	if !ok || g == nil {
		return db
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.gdb = g
	return db
}

func (db *DB[M]) WithTable(name string) query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tableName = name
	return db
}

func (db *DB[M]) WithDebug() query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.debug = true
	return db
}

func (db *DB[M]) WithBatchSize(n int) query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batchSize = n
	return db
}

func (db *DB[M]) WithPurge() query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	enable := true
	db.enablePurge = &enable
	return db
}

// WithOrdered toggles the Bulk Executor's partial-failure mode for
// Create/InsertMany (spec §4.6): ordered (the default) halts on the
// first failing row and reports the successfully-written prefix;
// unordered attempts every row and reports every per-row failure.
func (db *DB[M]) WithOrdered(ordered bool) query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.ordered = &ordered
	return db
}

func (db *DB[M]) orderedOr(def bool) bool {
	if db.ordered != nil {
		return *db.ordered
	}
	return def
}

func (db *DB[M]) WithDryRun() query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dryRun = true
	return db
}

func (db *DB[M]) WithNoHook() query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.noHook = true
	return db
}

func (db *DB[M]) WithExpand(strategy query.ExpandStrategy, names ...string) query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.expandStrategy = strategy
	db.expandNames = names
	return db
}

// nonZero filters out the zero value of M (teacher's reflect.DeepEqual
// skip-empty-arg convention).
func nonZero[M types.Model](objs []M) []M {
	var empty M
	out := make([]M, 0, len(objs))
	for _, o := range objs {
		if !reflect.DeepEqual(o, empty) {
			out = append(out, o)
		}
	}
	return out
}

func batchSizeOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

var errNilDescriptor = dberrors.NewValidation("", "model type was never registered with model.Register")
