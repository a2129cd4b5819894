// Package relation implements the Relationship Loader (spec §4.8): lazy
// loader protocol, batched-eager selectinload, and raiseload/noload
// fault strategies, applied as a post-processing pass over a primary
// result set.
//
// Go has no property interception, so a relationship field is not a
// hidden descriptor; it is an explicit Loader[T] value embedded in the
// struct (the same "explicit tagged loader handle" approach model.Base
// uses for dirty tracking instead of hidden attribute-set dispatch).
// Access is the explicit Get method, which checks a state flag rather
// than triggering implicit I/O.
package relation

import (
	"reflect"

	"github.com/dataplane/orm/dberrors"
)

type loadState int

const (
	notLoaded loadState = iota
	loaded
	raised
	noLoadedNull
)

// Loader is the inline handle a relationship field holds in place of
// the bare related value. T is the related model pointer type for a
// to-one relation, or a slice of it for a to-many relation.
type Loader[T any] struct {
	state loadState
	value T
	err   error
	rel   string
}

// Get returns the related value, forcing a lazy load via fn if the
// loader has never been touched. A selectinload/raiseload/noload pass
// that already populated the loader short-circuits fn.
//
// fn is called at most once per loader; its result (or error) is
// cached for the lifetime of the instance.
func (l *Loader[T]) Get(fn func() (T, error)) (T, error) {
	switch l.state {
	case loaded, noLoadedNull:
		return l.value, nil
	case raised:
		var zero T
		return zero, l.err
	}
	v, err := fn()
	if err != nil {
		l.state = raised
		l.err = err
		var zero T
		return zero, err
	}
	l.state = loaded
	l.value = v
	return v, nil
}

// Loaded reports whether the loader holds a value (or null) without
// forcing a load.
func (l *Loader[T]) Loaded() bool { return l.state == loaded || l.state == noLoadedNull }

// setValue marks the loader loaded with v, used by selectinload.
func (l *Loader[T]) setValue(v any) {
	l.state = loaded
	if tv, ok := v.(T); ok {
		l.value = tv
	}
}

// setNull marks the loader loaded with the zero value, used when the
// FK is NULL (spec §4.8 "If the FK is NULL, skip the query; cache
// null; mark loaded.").
func (l *Loader[T]) setNull() {
	l.state = loaded
	var zero T
	l.value = zero
}

// setRaise marks the loader faulted; any Get call returns err (spec
// §4.8 raiseload).
func (l *Loader[T]) setRaise(rel string) {
	l.state = raised
	l.rel = rel
	l.err = dberrors.NewRelationshipAccessNotAllowed(rel)
}

// setNoLoad marks the loader loaded-as-null without raising, the
// noload strategy (spec §4.8 "Equivalent to raiseload but returns null
// on access instead of raising.").
func (l *Loader[T]) setNoLoad() {
	l.state = noLoadedNull
	var zero T
	l.value = zero
}

// slot is the structural interface Apply uses to populate a Loader[T]
// field by reflection without knowing T.
type slot interface {
	setValue(v any)
	setNull()
	setRaise(rel string)
	setNoLoad()
}

var (
	_ slot = (*Loader[int])(nil)
)

var loaderPkgPath = reflect.TypeOf(Loader[int]{}).PkgPath()

// FieldKind reports whether t is some instantiation Loader[T] and, if
// so, returns T's reflect.Type. model.BuildDescriptor uses this to
// recognize relationship fields by shape rather than by name, since
// Go's reflect package exposes no generic type arguments directly.
func FieldKind(t reflect.Type) (target reflect.Type, ok bool) {
	if t.Kind() != reflect.Struct || t.PkgPath() != loaderPkgPath || !strHasPrefix(t.Name(), "Loader[") {
		return nil, false
	}
	vf, ok := t.FieldByName("value")
	if !ok {
		return nil, false
	}
	return vf.Type, true
}

func strHasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
