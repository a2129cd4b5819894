// Package types defines the language-agnostic contracts the engine is
// built around: the Model contract every registered type must satisfy,
// the model descriptor metadata frozen at registration time, and the
// runtime Instance lifecycle state machine.
package types

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Model is the contract every registered type must satisfy, typically by
// embedding model.Base. A pointer to a struct implementing Model can be
// passed as the type parameter to Database[M] and to the session
// package's generic functions (Add, Get, Save, Delete).
type Model interface {
	GetTableName() string
	GetID() string
	SetID(id ...string)
	ClearID()
	GetCreatedBy() string
	GetUpdatedBy() string
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
	SetCreatedBy(string)
	SetUpdatedBy(string)
	SetCreatedAt(time.Time)
	SetUpdatedAt(time.Time)

	// Expands returns the relationship field names that should be eager
	// loaded by default when no query options override them.
	Expands() []string
	// Excludes returns field->values exclusion predicates merged into
	// every query issued against this model.
	Excludes() map[string][]any
	// Purge reports whether Delete should bypass the soft-delete column
	// and remove the row/document permanently.
	Purge() bool

	MarshalLogObject(zapcore.ObjectEncoder) error

	CreateBefore(*ModelContext) error
	CreateAfter(*ModelContext) error
	DeleteBefore(*ModelContext) error
	DeleteAfter(*ModelContext) error
	UpdateBefore(*ModelContext) error
	UpdateAfter(*ModelContext) error
	ListBefore(*ModelContext) error
	ListAfter(*ModelContext) error
	GetBefore(*ModelContext) error
	GetAfter(*ModelContext) error
}

// State is the Instance lifecycle state machine (spec §3.2):
//
//	Transient -> Pending -> Persistent -> {Deleted, Detached}
//
// Dirty is tracked as an orthogonal flag on Persistent instances, not as
// a separate state.
type State int

const (
	Transient State = iota
	Pending
	Persistent
	Deleted
	Detached
)

func (s State) String() string {
	switch s {
	case Transient:
		return "transient"
	case Pending:
		return "pending"
	case Persistent:
		return "persistent"
	case Deleted:
		return "deleted"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// LogicalType is the tagged variant describing a field's schema type,
// independent of the backend's native wire representation.
type LogicalType int

const (
	TString LogicalType = iota
	TInteger
	TFloat
	TBool
	TTimestamp
	TDate
	TDecimal
	TBytes
	TObjectID
	TUUID
	TJSON
	TArray    // element type carried in FieldDescriptor.Elem
	TEmbedded // nested ModelDescriptor carried in FieldDescriptor.Embed
	TEnum     // legal values carried in FieldDescriptor.EnumValues
	TGeo
	TOptional // wraps FieldDescriptor.Elem; value may be absent/null
)

// ConstraintKind is the tagged variant of a field-level constraint
// enforced by the Validation Gate's type/constraint tier.
type ConstraintKind int

const (
	CMinLen ConstraintKind = iota
	CMaxLen
	CRegex
	CRange
	CIn
	CEmail
	CURL
	CNotEmpty
	CCustom
)

// Constraint pairs a ConstraintKind with its parameters. Only the fields
// relevant to Kind are populated.
type Constraint struct {
	Kind       ConstraintKind
	IntParam   int64 // MinLen, MaxLen
	MinFloat   float64
	MaxFloat   float64
	Pattern    string // Regex
	Values     []any  // In
	CustomID   string // Custom
	CustomFunc func(v any) error
}

// FieldDescriptor is the immutable metadata for one model field.
type FieldDescriptor struct {
	Name           string // Go struct field name
	WireName       string // column / BSON key name
	Type           LogicalType
	Elem           *FieldDescriptor // for TArray / TOptional
	Embed          *ModelDescriptor // for TEmbedded
	EnumValues     []string         // for TEnum
	Constraints    []Constraint
	Nullable       bool
	Unique         bool
	HasDefault     bool
	Default        any
	DefaultFactory func() any
	Computed       bool // computed fields never encode, never appear in dirty bitmap
	Index          int  // bit position in the dirty bitmap
}

// IndexSpec describes one index declared on a model.
type IndexSpec struct {
	Name   string
	Fields []string
	Unique bool
	Desc   bool
}

// RelationKind tags the three supported relationship shapes (spec §3.3).
type RelationKind int

const (
	RelManyToOne RelationKind = iota
	RelOneToMany
	RelManyToMany
)

// RelationDescriptor is the immutable metadata for one relationship
// field.
type RelationDescriptor struct {
	Name          string
	Kind          RelationKind
	TargetTable   string
	FKFieldOnSelf string // ManyToOne
	FKOnTarget    string // OneToMany
	TargetPK      string
	JunctionTable string // ManyToMany
	LeftFK        string // ManyToMany
	RightFK       string // ManyToMany
	NewTarget     func() Model
}

// ModelDescriptor is the immutable, frozen-after-registration schema
// metadata for one registered model type.
type ModelDescriptor struct {
	TableName    string
	SchemaNS     string
	PKField      string
	Fields       []*FieldDescriptor
	FieldByName  map[string]*FieldDescriptor
	Indexes      []IndexSpec
	Relations    map[string]*RelationDescriptor
	AutoCoerce   bool // permit textual coercion on type mismatch (§4.1)
	MaxDepth     int
	MaxDocBytes  int
	frozen       bool
}

// Freeze sets the flag Frozen reports; Register calls Freeze exactly
// once per model type. The flag is not enforced: the descriptor's
// fields stay exported and writable.
func (d *ModelDescriptor) Freeze() { d.frozen = true }

// Frozen reports whether Freeze has been called.
func (d *ModelDescriptor) Frozen() bool { return d.frozen }

// BitCount returns the number of non-computed fields tracked by the
// dirty bitmap.
func (d *ModelDescriptor) BitCount() int {
	n := 0
	for _, f := range d.Fields {
		if !f.Computed {
			n++
		}
	}
	return n
}
