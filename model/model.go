// Package model provides the Base type every registered model embeds,
// the Register function that builds and freezes a Model Descriptor from
// a struct's field tags, and the global registry consulted at schema
// migration / bootstrap time.
package model

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dataplane/orm/consts"
	"github.com/dataplane/orm/types"
	"github.com/dataplane/orm/util"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

var (
	mu sync.Mutex

	// registry maps a model's reflect.Type to its frozen descriptor.
	registry = make(map[reflect.Type]*types.ModelDescriptor)

	// Tables lists every model registered so far, in registration order.
	// No package in this module reads it; it is exported for callers.
	Tables []types.Model
)

// Register builds the Model Descriptor for M by reflecting over its
// struct tags, freezes it, and appends M to Tables.
//
// Call Register once per model type, typically from an init() in the
// package that declares the model, before any Database[M] operation
// runs against it.
func Register[M types.Model]() *types.ModelDescriptor {
	mu.Lock()
	defer mu.Unlock()

	typ := reflect.TypeOf(*new(M)).Elem()
	if d, ok := registry[typ]; ok {
		return d
	}

	table := reflect.New(typ).Interface().(M) //nolint:errcheck
	desc := BuildDescriptor(typ, table.GetTableName())
	desc.Freeze()
	registry[typ] = desc
	Tables = append(Tables, table)
	return desc
}

// DescriptorOf returns the frozen descriptor for M, or nil if M was
// never registered.
func DescriptorOf[M types.Model]() *types.ModelDescriptor {
	mu.Lock()
	defer mu.Unlock()
	return registry[reflect.TypeOf(*new(M)).Elem()]
}

// DescriptorOfInstance returns the frozen descriptor for a Model value
// obtained at runtime (e.g. RelationDescriptor.NewTarget()), where no
// static type parameter is available to call DescriptorOf with.
func DescriptorOfInstance(m types.Model) *types.ModelDescriptor {
	mu.Lock()
	defer mu.Unlock()
	typ := reflect.TypeOf(m)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return registry[typ]
}

var (
	_ types.Model = (*Base)(nil)
	_ types.Model = (*Empty)(nil)
	_ types.Model = (*Any)(nil)
)

// Base implements types.Model and supplies the identity, audit-trail,
// and Copy-on-Write dirty-bit fields every registered model inherits.
//
// Dirty tracking: Go has no intercepted field assignment, so the
// attribute-set bit (spec §4.3) is set by an explicit call rather than
// by hidden property dispatch, mirroring the "explicit loader handle"
// re-architecture applied elsewhere in this engine. A model's own
// setter methods (e.g. SetName) should call MarkDirty(bit) after
// assigning the field; Create/Update consult DirtyBits() to build the
// partial UPDATE. Fields on Base itself are never user-dirty: audit
// fields are stamped by the hook pipeline, not by caller mutation.
type Base struct {
	ID string `json:"id" bson:"_id,omitempty" gorm:"primaryKey"`

	CreatedBy string         `json:"created_by,omitempty" gorm:"index"`
	UpdatedBy string         `json:"updated_by,omitempty" gorm:"index"`
	CreatedAt *time.Time     `json:"created_at,omitempty" gorm:"index"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty" gorm:"index"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	state   types.State
	dirty   []uint64
	nbits   int
	session any // weak back-reference to an attached *session.Session; nil when detached
}

func bitWords(n int) int { return (n + 63) / 64 }

// initTracking lazily sizes the dirty bitmap the first time it is
// needed; called by MarkDirty/ClearDirty/DirtyBits/IsDirty.
func (b *Base) initTracking(nbits int) {
	if b.dirty == nil {
		b.nbits = nbits
		b.dirty = make([]uint64, bitWords(nbits))
	}
}

// MarkDirty sets bit i in the instance's dirty bitmap. nbits is the
// model descriptor's total tracked-field count (FieldDescriptor.Index
// is always < nbits); it is passed on every call because Base has no
// reference to its owning descriptor.
func (b *Base) MarkDirty(i, nbits int) {
	b.initTracking(nbits)
	if i < 0 || i >= b.nbits {
		return
	}
	b.dirty[i/64] |= 1 << uint(i%64)
}

// ClearDirty zeroes the dirty bitmap. Called after a successful save.
func (b *Base) ClearDirty() {
	for i := range b.dirty {
		b.dirty[i] = 0
	}
}

// IsDirty reports whether any bit is set.
func (b *Base) IsDirty() bool {
	for _, w := range b.dirty {
		if w != 0 {
			return true
		}
	}
	return false
}

// DirtyBits returns the sorted list of set bit positions.
func (b *Base) DirtyBits() []int {
	bits := make([]int, 0, b.nbits)
	for i := 0; i < b.nbits; i++ {
		if b.dirty[i/64]&(1<<uint(i%64)) != 0 {
			bits = append(bits, i)
		}
	}
	return bits
}

// GetState returns the instance's lifecycle state (spec §3.2).
func (b *Base) GetState() types.State { return b.state }

// SetState transitions the instance's lifecycle state. Intended for use
// by the session and relational/document backends, not by model code.
func (b *Base) SetState(s types.State) { b.state = s }

// AttachSession records the owning *session.Session as a weak
// back-reference, read by mutation-aware helpers that need to notify
// the session a field changed. Detach with AttachSession(nil).
func (b *Base) AttachSession(s any) { b.session = s }

// Session returns the attached session handle, or nil when detached.
func (b *Base) Session() any { return b.session }

func (b *Base) GetTableName() string    { return "" }
func (b *Base) GetCreatedBy() string    { return b.CreatedBy }
func (b *Base) GetUpdatedBy() string    { return b.UpdatedBy }
func (b *Base) GetCreatedAt() time.Time { return util.Deref(b.CreatedAt) }
func (b *Base) GetUpdatedAt() time.Time { return util.Deref(b.UpdatedAt) }
func (b *Base) SetCreatedBy(s string)   { b.CreatedBy = s }
func (b *Base) SetUpdatedBy(s string)   { b.UpdatedBy = s }
func (b *Base) SetCreatedAt(t time.Time) { b.CreatedAt = &t }
func (b *Base) SetUpdatedAt(t time.Time) { b.UpdatedAt = &t }
func (b *Base) GetID() string           { return b.ID }
func (b *Base) SetID(id ...string)      { setID(b, id...) }
func (b *Base) ClearID()                { clearID(b) }
func (b *Base) Expands() []string          { return nil }
func (b *Base) Excludes() map[string][]any { return nil }
func (b *Base) Purge() bool                { return false }

func (b *Base) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", b.ID)
	enc.AddString("created_by", b.CreatedBy)
	enc.AddString("updated_by", b.UpdatedBy)
	enc.AddString("state", b.state.String())
	return nil
}

func (*Base) CreateBefore(*types.ModelContext) error { return nil }
func (*Base) CreateAfter(*types.ModelContext) error  { return nil }
func (*Base) DeleteBefore(*types.ModelContext) error { return nil }
func (*Base) DeleteAfter(*types.ModelContext) error  { return nil }
func (*Base) UpdateBefore(*types.ModelContext) error { return nil }
func (*Base) UpdateAfter(*types.ModelContext) error  { return nil }
func (*Base) ListBefore(*types.ModelContext) error   { return nil }
func (*Base) ListAfter(*types.ModelContext) error    { return nil }
func (*Base) GetBefore(*types.ModelContext) error    { return nil }
func (*Base) GetAfter(*types.ModelContext) error     { return nil }

func setID(m types.Model, id ...string) {
	val := reflect.ValueOf(m).Elem()
	idField := val.FieldByName(consts.FIELD_ID)
	if len(idField.String()) != 0 {
		return
	}
	if len(id) == 0 || len(id[0]) == 0 {
		idField.SetString(util.UUID())
		return
	}
	idField.SetString(id[0])
}

func clearID(m types.Model) {
	reflect.ValueOf(m).Elem().FieldByName(consts.FIELD_ID).SetString("")
}

// ErrNotPointerToStruct is returned by descriptor building when M is not
// a pointer to struct.
var ErrNotPointerToStruct = errors.New("model: type parameter must be a pointer to struct")

// Empty is a no-op Model implementation. Embed it in request/response
// DTOs that must satisfy a generic constraint but are never persisted.
type Empty struct{}

func (Empty) GetTableName() string                             { return "" }
func (Empty) GetCreatedBy() string                              { return "" }
func (Empty) GetUpdatedBy() string                              { return "" }
func (Empty) GetCreatedAt() time.Time                           { return time.Time{} }
func (Empty) GetUpdatedAt() time.Time                           { return time.Time{} }
func (Empty) SetCreatedBy(s string)                             {}
func (Empty) SetUpdatedBy(s string)                             {}
func (Empty) SetCreatedAt(t time.Time)                          {}
func (Empty) SetUpdatedAt(t time.Time)                          {}
func (Empty) GetID() string                                     { return "" }
func (Empty) SetID(id ...string)                                {}
func (Empty) ClearID()                                          {}
func (Empty) Expands() []string                                 { return nil }
func (Empty) Excludes() map[string][]any                        { return nil }
func (Empty) Purge() bool                                       { return false }
func (Empty) MarshalLogObject(enc zapcore.ObjectEncoder) error  { return nil }
func (Empty) CreateBefore(*types.ModelContext) error { return nil }
func (Empty) CreateAfter(*types.ModelContext) error  { return nil }
func (Empty) DeleteBefore(*types.ModelContext) error { return nil }
func (Empty) DeleteAfter(*types.ModelContext) error  { return nil }
func (Empty) UpdateBefore(*types.ModelContext) error { return nil }
func (Empty) UpdateAfter(*types.ModelContext) error  { return nil }
func (Empty) ListBefore(*types.ModelContext) error   { return nil }
func (Empty) ListAfter(*types.ModelContext) error    { return nil }
func (Empty) GetBefore(*types.ModelContext) error    { return nil }
func (Empty) GetAfter(*types.ModelContext) error     { return nil }

// Any is a placeholder Model used as the type parameter for
// TransactionFunc when a transaction needs to span several concrete
// model types and no single one should be privileged.
type Any struct{}

func (Any) GetTableName() string                            { return "" }
func (Any) GetCreatedBy() string                             { return "" }
func (Any) GetUpdatedBy() string                             { return "" }
func (Any) GetCreatedAt() time.Time                          { return time.Time{} }
func (Any) GetUpdatedAt() time.Time                          { return time.Time{} }
func (Any) SetCreatedBy(s string)                            {}
func (Any) SetUpdatedBy(s string)                            {}
func (Any) SetCreatedAt(t time.Time)                         {}
func (Any) SetUpdatedAt(t time.Time)                         {}
func (Any) GetID() string                                    { return "" }
func (Any) SetID(id ...string)                               {}
func (Any) ClearID()                                         {}
func (Any) Expands() []string                                { return nil }
func (Any) Excludes() map[string][]any                       { return nil }
func (Any) Purge() bool                                      { return false }
func (Any) MarshalLogObject(enc zapcore.ObjectEncoder) error { return nil }
func (Any) CreateBefore(*types.ModelContext) error { return nil }
func (Any) CreateAfter(*types.ModelContext) error  { return nil }
func (Any) DeleteBefore(*types.ModelContext) error { return nil }
func (Any) DeleteAfter(*types.ModelContext) error  { return nil }
func (Any) UpdateBefore(*types.ModelContext) error { return nil }
func (Any) UpdateAfter(*types.ModelContext) error  { return nil }
func (Any) ListBefore(*types.ModelContext) error   { return nil }
func (Any) ListAfter(*types.ModelContext) error    { return nil }
func (Any) GetBefore(*types.ModelContext) error    { return nil }
func (Any) GetAfter(*types.ModelContext) error      { return nil }

// tableNameOf derives a snake_case, pluralized-by-suffix table name from
// a struct type when GetTableName returns "".
func tableNameOf(typ reflect.Type) string {
	name := util.SnakeCase(typ.Name())
	if strings.HasSuffix(name, "s") {
		return name + "es"
	}
	return name + "s"
}
