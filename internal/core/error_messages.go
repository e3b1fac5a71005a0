// Error codes reference.
//
// Every error that reaches a user carries a short code that support staff
// can look up here. Typed *Error values carry their code directly; other
// errors are matched against known patterns.
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - Invalid snapshot: the file or one of its rows is malformed
//	VAL002 - Duplicate external id: the same external_id appears twice
//	VAL003 - Field not editable: the field may not be proposed
//	VAL004 - Invalid coordinates: out of range or not supplied as a pair
//	VAL005 - Invalid value: a field value could not be parsed
//	VAL006 - Not rollback-eligible: only bulk uploads can be rolled back
//	VAL007 - Person deleted: edits to deleted persons are not accepted
//
// # Conflicts (CFL001-CFL099)
//
//	CFL001 - Stale base: the person changed since the submission was made
//	CFL002 - Later changes: newer changes would be discarded by a rollback
//	CFL003 - Already rolled back
//	CFL004 - Duplicate key: a concurrent write created the same record
//	CFL005 - Concurrent write: another operation changed the same persons
//	CFL006 - Already decided: the submission is no longer pending
//
// # Persistence (DB001-DB099)
//
//	DB001 - Storage failure (generic)
//	DB002 - Connection refused
//	DB003 - Timeout
//	DB004 - Connection reset
//
// # Other
//
//	NF001   - Not found
//	AUTH001 - Missing or invalid principal
//	AUTH002 - Role not permitted
//	BAT001  - Too many concurrent batches
//	RATE001 - Too many requests
//	ERR000  - Unknown error; check the server log for the technical error
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var codeMessages = map[string]UserMessage{
	CodeInvalidSnapshot: {
		Message: "The snapshot file is not valid",
		Action:  "Fix the listed rows and upload the file again",
	},
	CodeDuplicateExternalID: {
		Message: "The snapshot contains duplicate external ids",
		Action:  "Make every external_id unique and upload again",
	},
	CodeFieldNotEditable: {
		Message: "One or more fields cannot be edited",
		Action:  "Only death date, death location, coordinates and photos may be proposed",
	},
	CodeInvalidCoordinates: {
		Message: "The coordinates are not valid",
		Action:  "Supply latitude (-90..90) and longitude (-180..180) together",
	},
	CodeInvalidValue: {
		Message: "A field value is not valid",
		Action:  "Check the value format and try again",
	},
	CodeNotRollbackEligible: {
		Message: "This change cannot be rolled back",
		Action:  "Only bulk uploads can be rolled back",
	},
	CodePersonDeleted: {
		Message: "This person has been removed from the registry",
		Action:  "Edits to removed records are not accepted",
	},
	CodeStaleBase: {
		Message: "The record changed after this edit was proposed",
		Action:  "Review the current record, then approve with rebase or reject",
	},
	CodeLaterChanges: {
		Message: "Later changes exist for records in this batch",
		Action:  "Review the listed records, then force the rollback if intended",
	},
	CodeAlreadyRolledBack: {
		Message: "This batch has already been rolled back",
		Action:  "No further action is needed",
	},
	CodeDuplicateKey: {
		Message: "Another operation created the same record",
		Action:  "Refresh and try again",
	},
	CodeConcurrentWrite: {
		Message: "Another operation changed the same records",
		Action:  "Refresh and try again",
	},
	CodeAlreadyDecided: {
		Message: "This submission has already been decided",
		Action:  "Refresh the moderation queue",
	},
	CodeNotFound: {
		Message: "The requested record was not found",
		Action:  "Check the identifier and try again",
	},
	CodeUnauthorized: {
		Message: "You are not signed in",
		Action:  "Sign in and try again",
	},
	CodeForbidden: {
		Message: "You do not have permission to do this",
		Action:  "Ask an administrator for access",
	},
	CodePersistence: {
		Message: "The operation could not be saved",
		Action:  "Please try again or contact support",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns classify errors that carry no code. The first match wins,
// so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "too many concurrent batches",
		msg: UserMessage{
			Message: "The registry is busy applying other snapshots",
			Action:  "Please wait a moment and try again",
			Code:    "BAT001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. A typed *Error is
// looked up by code; persistence failures and untyped errors are matched
// against known patterns first.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrTooManyBatches) {
		return errorPatterns[0].msg
	}

	e, typed := AsError(err)
	if typed && e.Kind != KindPersistence {
		if msg, ok := codeMessages[e.Code]; ok {
			msg.Code = e.Code
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if typed {
		msg := codeMessages[CodePersistence]
		msg.Code = CodePersistence
		return msg
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
