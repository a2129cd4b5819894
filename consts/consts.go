// Package consts holds small tagged constants shared across the engine
// packages: lifecycle phases, lock modes, index hint modes and a handful
// of well-known field names.
package consts

// Phase identifies a point in a model's CRUD lifecycle at which hooks run
// and spans are emitted.
type Phase string

const (
	PHASE_CREATE_BEFORE Phase = "create_before"
	PHASE_CREATE_AFTER  Phase = "create_after"
	PHASE_UPDATE_BEFORE Phase = "update_before"
	PHASE_UPDATE_AFTER  Phase = "update_after"
	PHASE_DELETE_BEFORE Phase = "delete_before"
	PHASE_DELETE_AFTER  Phase = "delete_after"
	PHASE_LIST_BEFORE   Phase = "list_before"
	PHASE_LIST_AFTER    Phase = "list_after"
	PHASE_GET_BEFORE    Phase = "get_before"
	PHASE_GET_AFTER     Phase = "get_after"
)

// LockMode selects the row-level locking clause appended to a SELECT
// executed within a transaction.
type LockMode string

const (
	LockUpdate           LockMode = "update"
	LockShare            LockMode = "share"
	LockUpdateNoWait     LockMode = "update_nowait"
	LockShareNoWait      LockMode = "share_nowait"
	LockUpdateSkipLocked LockMode = "update_skip_locked"
	LockShareSkipLocked  LockMode = "share_skip_locked"
)

// IndexHintMode selects how a relational query builder applies an index
// hint. Only honored by backends that support it (MySQL); ignored
// elsewhere.
type IndexHintMode string

const (
	IndexHintUse    IndexHintMode = "use"
	IndexHintForce  IndexHintMode = "force"
	IndexHintIgnore IndexHintMode = "ignore"
)

// IsolationLevel names a relational transaction isolation level.
type IsolationLevel string

const (
	IsolationReadUncommitted IsolationLevel = "read_uncommitted"
	IsolationReadCommitted   IsolationLevel = "read_committed"
	IsolationRepeatableRead  IsolationLevel = "repeatable_read"
	IsolationSerializable    IsolationLevel = "serializable"
)

// FIELD_ID is the struct field name every registered model must expose as
// its primary key in the relational backend.
const FIELD_ID = "ID"

// Backend-wide defaults, overridable via config/environment.
const (
	DefaultParallelCodecThreshold = 50
	DefaultMaxNestingDepth        = 100
	DefaultDocumentMaxBytes       = 16 * 1024 * 1024 // MongoDB single-document limit
	DefaultCreateBatchSize        = 1000
	DefaultDeleteBatchSize        = 10000
	DefaultPoolMinConns           = 2
	DefaultPoolMaxConns           = 10
	DefaultPoolAcquireTimeoutMS   = 5000
)

// ReservedTablePrefixes must never prefix a caller-supplied table or
// collection name (validate.Identifier enforces this).
var ReservedTablePrefixes = []string{"pg_", "information_schema", "system."}

// ReservedKeywords is a conservative list of SQL keywords rejected as
// field or table identifiers. It is intentionally small: the gate's job
// is to catch obviously dangerous names, not to replicate a full SQL
// grammar.
var ReservedKeywords = map[string]struct{}{
	"select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
	"table": {}, "union": {}, "where": {}, "from": {}, "grant": {},
	"revoke": {}, "alter": {}, "exec": {}, "execute": {},
}
