// Package document implements Database[M] against MongoDB via
// go.mongodb.org/mongo-driver/v2 (spec §2 document backend), mirroring
// relational.DB[M]'s option surface and generalizing it to bson.M
// filters and collection-level operations.
package document

import (
	"reflect"
	"sync"

	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/dberrors"
	"github.com/dataplane/orm/logger"
	"github.com/dataplane/orm/model"
	"github.com/dataplane/orm/query"
	"github.com/dataplane/orm/types"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DB implements query.Database[M] against a *mongo.Collection.
type DB[M types.Model] struct {
	client *mongo.Client
	dbase  *mongo.Database
	coll   *mongo.Collection
	desc   *types.ModelDescriptor
	dbctx  *types.DatabaseContext

	mu sync.Mutex

	collName    string
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

// New builds a Database[M] bound to mdb, reading M's frozen descriptor
// from the model registry and defaulting the collection name to
// desc.TableName. dbctx may be nil.
func New[M types.Model](client *mongo.Client, mdb *mongo.Database, dbctx *types.DatabaseContext) *DB[M] {
	desc := model.DescriptorOf[M]()
	if dbctx == nil {
		dbctx = types.NewDatabaseContext(nil)
	}
	db := &DB[M]{client: client, dbase: mdb, desc: desc, dbctx: dbctx}
	if desc != nil {
		db.coll = mdb.Collection(desc.TableName)
	}
	return db
}

func (db *DB[M]) reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collName = ""
	db.batchSize = 0
	db.enablePurge = nil
	db.ordered = nil
	db.debug = false
	db.dryRun = false
	db.noHook = false
	db.expandStrategy = 0
	db.expandNames = nil
}

func (db *DB[M]) collection() *mongo.Collection {
	if db.collName != "" {
		return db.dbase.Collection(db.collName)
	}
	return db.coll
}

func (db *DB[M]) purge(m M) bool {
	if db.enablePurge != nil {
		return *db.enablePurge
	}
	return m.Purge()
}

func (db *DB[M]) log() *logger.Logger {
	return logger.Document.WithDatabaseContext(db.dbctx, consts.Phase(""))
}

func (db *DB[M]) WithDB(handle any) query.Database[M] {
	mdb, ok := handle.(*mongo.Database)
	if !ok || mdb == nil {
		return db
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dbase = mdb
	if db.desc != nil {
		db.coll = mdb.Collection(db.desc.TableName)
	}
	return db
}

func (db *DB[M]) WithTx(tx any) query.Database[M] {
	// Mongo sessions are carried via context (mongo.NewSessionContext),
	// not by rebinding the collection handle; see Transaction/TransactionFunc.
	return db
}

func (db *DB[M]) WithTable(name string) query.Database[M] {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collName = name
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
// Create/InsertMany (spec §4.6), mirroring MongoDB's own
// insertMany/bulkWrite ordered option: ordered (the default) halts on
// the first failing document; unordered attempts every document.
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
