// Package util holds small generic helpers reused throughout the engine:
// pointer dereferencing, identifier generation, and identifier casing.
package util

import (
	"github.com/google/uuid"
	"github.com/stoewer/go-strcase"
)

// Deref returns the zero value of T when p is nil, otherwise *p.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Pointer returns a pointer to a copy of v. Named ValueOf in call sites
// that read more naturally as "the pointer-of value v".
func Pointer[T any](v T) *T { return &v }

// ValueOf is an alias of Pointer kept for call-site readability where a
// field assignment reads as "value of x".
func ValueOf[T any](v T) *T { return &v }

// UUID returns a new random (v4) identifier as its canonical string form.
// Used as the default primary key generator for document-backend models
// and as the Transient->Pending identity stamp for relational models
// that do not supply their own ID.
func UUID() string { return uuid.NewString() }

// SnakeCase converts a Go exported identifier (or JSON-tag-style name)
// to snake_case, used by the model package when deriving wire/column
// and table names, and by migrate for migration file slugs.
func SnakeCase(s string) string { return strcase.SnakeCase(s) }
