// Package errs categorizes consensus-core errors per spec §7: Validation,
// Drop, Transient and Fatal. Callers branch on Kind instead of matching
// error strings.
package errs

import "fmt"

// Kind is the category of a consensus error.
type Kind uint8

const (
	// KindValidation is attributable to the sender. The executor rejects
	// the offending message without storing it.
	KindValidation Kind = iota
	// KindDrop is an unattributable shape issue: logged and dropped
	// silently.
	KindDrop
	// KindTransient is a failure not attributable to the sender (missing
	// dependency, execution engine, storage). Nothing in this module
	// retries it automatically.
	KindTransient
	// KindFatal must terminate the process: self-equivocation or a broken
	// DAG invariant.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDrop:
		return "drop"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ValidationSubKind enumerates the InvalidBlock(kind) taxonomy of spec §4.2.
type ValidationSubKind uint8

const (
	SubKindNone ValidationSubKind = iota
	SubKindShape
	SubKindSignature
	SubKindParents
	SubKindTimestamp
	SubKindTransaction
	SubKindMissingDep
	SubKindEquivocation
)

func (s ValidationSubKind) String() string {
	switch s {
	case SubKindShape:
		return "shape"
	case SubKindSignature:
		return "signature"
	case SubKindParents:
		return "parents"
	case SubKindTimestamp:
		return "timestamp"
	case SubKindTransaction:
		return "transaction"
	case SubKindMissingDep:
		return "missing-dep"
	case SubKindEquivocation:
		return "equivocation"
	default:
		return "none"
	}
}

// Error is a categorized consensus error that wraps an underlying cause.
type Error struct {
	Kind    Kind
	Sub     ValidationSubKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Validation builds a Validation-kind error tagged with a sub-kind.
func Validation(sub ValidationSubKind, msg string) *Error {
	return &Error{Kind: KindValidation, Sub: sub, Message: msg}
}

// ValidationWrap builds a Validation-kind error tagged with a sub-kind,
// wrapping cause.
func ValidationWrap(sub ValidationSubKind, msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Sub: sub, Message: msg, Cause: cause}
}

// Transient builds a Transient-kind error (surfaces as Unavailable).
func Transient(msg string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Cause: cause}
}

// Fatal builds a Fatal-kind error. The caller is expected to terminate the
// process after observing one.
func Fatal(msg string, cause error) *Error {
	return &Error{Kind: KindFatal, Message: msg, Cause: cause}
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// IsFatal reports whether err is a Fatal-kind Error.
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.Kind == KindFatal
}
