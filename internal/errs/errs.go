// Package errs defines the structured error vocabulary shared by every
// engine component: storage, catalog, table, database, and the SQL
// pipeline. Callers distinguish failure modes with Of and the Kind
// constants (or errors.Is against an *Error of the wanted kind) rather
// than matching error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of engine failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindIoError
	KindOutOfRange
	KindRowTooLarge
	KindDuplicateKey
	KindNotFound
	KindSchemaError
	KindTypeError
	KindPkImmutable
	KindTableExists
	KindNoSuchTable
	KindLexError
	KindParseError
	KindExecutionError
)

func (k Kind) String() string {
	switch k {
	case KindIoError:
		return "IoError"
	case KindOutOfRange:
		return "OutOfRange"
	case KindRowTooLarge:
		return "RowTooLarge"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindNotFound:
		return "NotFound"
	case KindSchemaError:
		return "SchemaError"
	case KindTypeError:
		return "TypeError"
	case KindPkImmutable:
		return "PkImmutable"
	case KindTableExists:
		return "TableExists"
	case KindNoSuchTable:
		return "NoSuchTable"
	case KindLexError:
		return "LexError"
	case KindParseError:
		return "ParseError"
	case KindExecutionError:
		return "ExecutionError"
	default:
		return "Unknown"
	}
}

// Error is the structured error type returned by engine components.
// It wraps an optional underlying cause so errors.Unwrap keeps working.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, errs.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that carries an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Of reports whether err (or something it wraps) is an *Error of kind k.
func Of(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// sentinel values usable with errors.Is(err, errs.NotFound) style checks.
var (
	NotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	DuplicateKey = &Error{Kind: KindDuplicateKey, Message: "duplicate key"}
)
