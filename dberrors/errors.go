// Package dberrors implements the engine's error taxonomy (spec §4.10):
// a closed set of classified error kinds, and a sanitizer that strips
// schema identifiers from user-facing messages in production mode.
package dberrors

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Kind is the closed tagged variant of error classifications the engine
// produces. See spec §4.10 for the trigger/recoverability of each.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindType             Kind = "TypeError"
	KindNotFound         Kind = "NotFound"
	KindConflict         Kind = "Conflict"
	KindForeignKey       Kind = "ForeignKeyViolation"
	KindPoolExhausted    Kind = "PoolExhausted"
	KindDriver           Kind = "DriverError"
	KindSessionClosed    Kind = "SessionClosed"
	KindChecksumMismatch Kind = "ChecksumMismatch"
	KindMigrationMissing Kind = "MigrationFileMissing"
	KindRelationAccess   Kind = "RelationshipAccessNotAllowed"
	KindDocumentTooLarge Kind = "DocumentTooLarge"
	KindDocumentTooDeep  Kind = "DocumentTooDeep"
	KindFatal            Kind = "Fatal" // codec bugs, pool corruption: never recovered
)

// sanitize defaults to true (DB_SANITIZE_ERRORS default per spec §6).
var sanitize atomic.Bool

func init() { sanitize.Store(true) }

// SetSanitize toggles production-mode message sanitization process-wide.
// logger.Init wires this from config.App.Debug.SanitizeErrors (the
// DB_SANITIZE_ERRORS environment variable); tests may call it directly.
func SetSanitize(on bool) { sanitize.Store(on) }

// Sanitizing reports the current sanitization mode.
func Sanitizing() bool { return sanitize.Load() }

// Error is the engine's classified error type. Field and Message are
// always safe to surface to callers; Debug carries the unredacted
// detail (raw identifiers, driver text) and is only included in
// Error() when sanitization is disabled.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Debug   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if !Sanitizing() && e.Debug != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Debug)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Kind, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, dberrors.KindXxx)-style matching against a
// bare Kind sentinel is not idiomatic; callers should use As and check
// Kind, or the KindIs helper below.
func KindIs(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

func newErr(kind Kind, field, message string, cause error) *Error {
	return &Error{Kind: kind, Field: field, Message: message, Cause: cause}
}

func NewValidation(field, message string) *Error { return newErr(KindValidation, field, message, nil) }

func NewType(field, expected, got string) *Error {
	return newErr(KindType, field, fmt.Sprintf("expected %s, got %s", expected, got), nil)
}

func NewNotFound(field string) *Error {
	return newErr(KindNotFound, field, "record not found", nil)
}

func NewConflict(debug string) *Error {
	e := newErr(KindConflict, "", "a conflicting record already exists", nil)
	e.Debug = debug
	return e
}

func NewSerializationConflict() *Error {
	return newErr(KindConflict, "", "transaction could not be serialized, retry", nil)
}

func NewForeignKeyViolation(debug string) *Error {
	e := newErr(KindForeignKey, "", "operation violates a referential constraint", nil)
	e.Debug = debug
	return e
}

func NewPoolExhausted() *Error {
	return newErr(KindPoolExhausted, "", "timed out waiting for a connection", nil)
}

// NewDriver wraps a raw driver error, classifying it transient or
// permanent so callers can decide whether to retry (spec §7).
func NewDriver(cause error, transient bool) *Error {
	msg := "the database driver returned an error"
	if transient {
		msg = "a transient database error occurred, retry may succeed"
	}
	e := newErr(KindDriver, "", msg, cause)
	if cause != nil {
		e.Debug = cause.Error()
	}
	return e
}

func NewSessionClosed() *Error {
	return newErr(KindSessionClosed, "", "operation attempted on a closed session", nil)
}

func NewChecksumMismatch(version string) *Error {
	e := newErr(KindChecksumMismatch, "", "migration file content no longer matches its recorded checksum", nil)
	e.Debug = version
	return e
}

func NewMigrationFileMissing(version string) *Error {
	e := newErr(KindMigrationMissing, "", "a recorded migration's file is missing from disk", nil)
	e.Debug = version
	return e
}

func NewRelationshipAccessNotAllowed(rel string) *Error {
	e := newErr(KindRelationAccess, rel, "relationship access not allowed under raiseload", nil)
	return e
}

func NewDocumentTooLarge() *Error {
	return newErr(KindDocumentTooLarge, "", "document exceeds the maximum allowed size", nil)
}

func NewDocumentTooDeep() *Error {
	return newErr(KindDocumentTooDeep, "", "document nesting exceeds the configured depth limit", nil)
}

// Recoverable classifies whether a caller can meaningfully act on an
// error of this kind (spec §7 propagation policy).
func Recoverable(k Kind) bool {
	switch k {
	case KindValidation, KindType, KindNotFound, KindConflict, KindForeignKey,
		KindPoolExhausted, KindDocumentTooLarge, KindDocumentTooDeep:
		return true
	case KindDriver:
		return true // caller inspects Debug/Cause to decide on retry
	default:
		return false
	}
}
