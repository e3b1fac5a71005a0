package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that must pick a resolution path:
// resubmit (validation), re-fetch and retry or force (conflict), or give up
// (persistence).
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindNotFound
	KindForbidden
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrPersistence = errors.New("persistence failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindPersistence:
		return ErrPersistence
	}
	return nil
}

// Support codes carried by *Error. See error_messages.go for the user-facing text.
const (
	CodeInvalidSnapshot     = "VAL001"
	CodeDuplicateExternalID = "VAL002"
	CodeFieldNotEditable    = "VAL003"
	CodeInvalidCoordinates  = "VAL004"
	CodeInvalidValue        = "VAL005"
	CodeNotRollbackEligible = "VAL006"
	CodePersonDeleted       = "VAL007"

	CodeStaleBase         = "CFL001"
	CodeLaterChanges      = "CFL002"
	CodeAlreadyRolledBack = "CFL003"
	CodeDuplicateKey      = "CFL004"
	CodeConcurrentWrite   = "CFL005"
	CodeAlreadyDecided    = "CFL006"

	CodeNotFound     = "NF001"
	CodeUnauthorized = "AUTH001"
	CodeForbidden    = "AUTH002"
	CodePersistence  = "DB001"
)

// Error is the typed error returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	IDs     []string // affected identifiers (external ids, version ids, ...)
	Details []string // row-level problems for validation failures
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.IDs) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.IDs, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind's sentinel so callers can write errors.Is(err, ErrConflict).
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf classifies err. Errors that are not *Error count as persistence
// failures; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Validation builds a KindValidation error.
func Validation(op, code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error naming the affected ids.
func Conflict(op, code, message string, ids ...string) *Error {
	return &Error{Kind: KindConflict, Code: code, Op: op, Message: message, IDs: ids}
}

// NotFound builds a KindNotFound error.
func NotFound(op, resource, id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Op: op, Message: resource + " not found", IDs: []string{id}}
}

// Forbidden builds a KindForbidden error.
func Forbidden(op, message string) *Error {
	return &Error{Kind: KindForbidden, Code: CodeForbidden, Op: op, Message: message}
}

// Persistence wraps a storage failure. Typed errors pass through unchanged
// so a conflict raised by the store is never downgraded.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return &Error{Kind: KindPersistence, Code: CodePersistence, Op: op, Message: "storage operation failed", Err: err}
}

// WithIDs returns e with ids attached.
func (e *Error) WithIDs(ids ...string) *Error {
	e.IDs = append(e.IDs, ids...)
	return e
}

// WithDetails returns e with row-level details attached.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}
