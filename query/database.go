package query

import (
	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/types"
)

// UpsertSpec describes a conflict-key-driven upsert (spec §4.6):
// compiles to ON CONFLICT(Keys) DO UPDATE (relational) or an
// updateOne(..., upsert:true) (document).
type UpsertSpec struct {
	Keys []string
	Data map[string]any
}

// BulkError reports the outcome of a partially-failed batch write
// (spec §4.6 partial-failure semantics). For ordered batches, Written
// is the successfully-applied prefix length and Index/Err describe the
// first failure. For unordered batches, Failures holds every per-row
// error.
type BulkError struct {
	Written  int
	Index    int
	Err      error
	Failures map[int]error
}

func (e *BulkError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "bulk operation reported per-row failures"
}

func (e *BulkError) Unwrap() error { return e.Err }

// Database is the per-model data-access contract implemented by both
// the relational and document backends (spec §4.4/§4.6, generalizing
// the teacher's database.Database[M]). M is a pointer-to-struct type
// satisfying types.Model.
type Database[M types.Model] interface {
	// Create persists one or more transient instances.
	Create(objs ...M) error
	// Delete removes (or soft-deletes, unless Purge()) one or more
	// persistent instances.
	Delete(objs ...M) error
	// Update writes every dirty field of one or more persistent
	// instances back to the backend.
	Update(objs ...M) error
	// UpdateByID updates a single column on one record by primary key,
	// bypassing model hooks.
	UpdateByID(id string, field string, value any) error

	// Find starts a QueryPlan builder scoped to this model.
	Find(preds ...*FilterExpr) *Builder[M]
	// List executes plan (NewPlan() for "all") and writes matches to dest.
	List(plan *QueryPlan, dest *[]M) error
	// Get loads the record with the given primary key into dest.
	Get(dest M, id string) error
	// First returns the first record ordered by primary key.
	First(dest M) error
	// Count returns the number of records matching plan.
	Count(plan *QueryPlan, out *int64) error
	// Exists reports whether any record matches plan.
	Exists(plan *QueryPlan) (bool, error)
	// Aggregate computes agg over field across records matching plan.
	Aggregate(plan *QueryPlan, agg AggOp, field string) (float64, error)

	// UpdateMany applies set to every record matching preds.
	UpdateMany(set map[string]any, preds ...*FilterExpr) (int64, error)
	// DeleteMany removes every record matching preds.
	DeleteMany(preds ...*FilterExpr) (int64, error)
	// InsertMany is the Bulk Executor's batched insert entry point.
	InsertMany(objs []M) error
	// UpsertOne/UpsertMany compile to backend-native upserts (spec §4.6).
	UpsertOne(spec UpsertSpec) error
	UpsertMany(specs []UpsertSpec) error

	// Cleanup permanently removes every soft-deleted record.
	Cleanup() error
	// Health checks backend connectivity.
	Health() error
	// Transaction runs fn within a transaction scoped to this model,
	// auto-injecting the tx-bound Database[M] and rolling back on error.
	Transaction(fn func(txDB Database[M]) error) error
	// TransactionFunc runs fn within a transaction spanning any number
	// of model types. fn receives the backend's transaction handle: a
	// *gorm.DB (relational), which callers bind to each Database[M] with
	// WithTx, or a *mongo.Session (document), whose WithTx ignores it.
	TransactionFunc(fn func(tx any) error) error

	DatabaseOption[M]
}

// DatabaseOption is the WithXxx chain of per-call option setters (spec
// §4.4/§4.5/§6). Each call returns a new or mutated Database[M] so
// calls compose: WithDebug().WithBatchSize(500).Create(...).
type DatabaseOption[M types.Model] interface {
	// WithDB rebinds the underlying driver handle (*gorm.DB for the
	// relational backend, *mongo.Database for the document backend).
	WithDB(handle any) Database[M]
	// WithTx binds an existing transaction handle obtained from
	// TransactionFunc (relational backend; the document backend returns
	// itself unchanged).
	WithTx(tx any) Database[M]
	// WithTable overrides the default table/collection name.
	WithTable(name string) Database[M]
	// WithDebug turns on statement logging: the relational backend
	// switches its gorm session to debug mode, which logs each executed
	// statement. The document backend records the flag but does not
	// read it.
	WithDebug() Database[M]
	// WithBatchSize overrides the default batch size used by bulk
	// Create/InsertMany.
	WithBatchSize(n int) Database[M]
	// WithOrdered toggles ordered (default, halt-on-first-failure) vs
	// unordered (best-effort, every row attempted) bulk insert
	// semantics (spec §4.6 partial-failure semantics).
	WithOrdered(ordered bool) Database[M]
	// WithPurge forces permanent deletion regardless of Model.Purge().
	WithPurge() Database[M]
	// WithDryRun compiles the statement without executing it on the
	// relational backend (gorm's DryRun session; the statement is logged
	// only together with WithDebug). The document backend records the
	// flag but does not read it: its operations execute as usual
	// (supplemented feature, see SPEC_FULL.md D.5).
	WithDryRun() Database[M]
	// WithNoHook disables model lifecycle hook dispatch for this call.
	WithNoHook() Database[M]
	// WithExpand eagerly loads the named relationships using the given
	// strategy (selectinload/raiseload/noload; spec §4.8).
	WithExpand(strategy ExpandStrategy, names ...string) Database[M]
}

// ExpandStrategy selects a relationship-loading strategy (spec §4.8).
type ExpandStrategy int

const (
	ExpandSelectIn ExpandStrategy = iota
	ExpandJoined                  // reserved: compiles as ExpandSelectIn today, see relation package
	ExpandRaise
	ExpandNoLoad
	ExpandNone
)

// Builder is the fluent QueryPlan builder returned by Database[M].Find,
// terminating in ToList/First/Count/Exists/Aggregate (spec §4.4).
type Builder[M types.Model] struct {
	DB   Database[M]
	Plan *QueryPlan
}

func (b *Builder[M]) OrderBy(field string, dir OrderDir) *Builder[M] {
	b.Plan.OrderByField(field, dir)
	return b
}

func (b *Builder[M]) Limit(n int) *Builder[M] {
	b.Plan.WithLimit(n)
	return b
}

func (b *Builder[M]) Offset(n int) *Builder[M] {
	b.Plan.WithOffset(n)
	return b
}

func (b *Builder[M]) Select(fields ...string) *Builder[M] {
	b.Plan.WithSelect(fields...)
	return b
}

func (b *Builder[M]) GroupBy(fields ...string) *Builder[M] {
	b.Plan.GroupByFields(fields...)
	return b
}

func (b *Builder[M]) Having(agg AggOp, field string, op Op, value any) *Builder[M] {
	b.Plan.WithHaving(agg, field, op, value)
	return b
}

// Index, Lock, Cursor, SelectRaw, JoinRaw, and RawFilter chain the
// plan-scoped supplemented query options (SPEC_FULL.md D) onto the
// builder the same way OrderBy/Limit/Select do.
func (b *Builder[M]) Index(name string, mode consts.IndexHintMode) *Builder[M] {
	b.Plan.WithIndex(name, mode)
	return b
}

func (b *Builder[M]) Lock(mode consts.LockMode) *Builder[M] {
	b.Plan.WithLock(mode)
	return b
}

func (b *Builder[M]) Cursor(value string, next bool, field ...string) *Builder[M] {
	b.Plan.WithCursor(value, next, field...)
	return b
}

func (b *Builder[M]) SelectRaw(expr string) *Builder[M] {
	b.Plan.WithSelectRaw(expr)
	return b
}

func (b *Builder[M]) JoinRaw(expr string, args ...any) *Builder[M] {
	b.Plan.WithJoinRaw(expr, args...)
	return b
}

func (b *Builder[M]) RawFilter(fragment map[string]any) *Builder[M] {
	b.Plan.WithRawFilter(fragment)
	return b
}

func (b *Builder[M]) ToList(dest *[]M) error { return b.DB.List(b.Plan, dest) }

func (b *Builder[M]) Count(out *int64) error { return b.DB.Count(b.Plan, out) }

func (b *Builder[M]) Exists() (bool, error) { return b.DB.Exists(b.Plan) }

func (b *Builder[M]) Aggregate(agg AggOp, field string) (float64, error) {
	return b.DB.Aggregate(b.Plan, agg, field)
}
