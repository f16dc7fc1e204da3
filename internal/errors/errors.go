package errors

import (
	stderrors "errors"
	"fmt"
)

// SessionError is a structured session abort: a stable machine-readable code
// plus an operator-facing message. Sessions fail with one of these, never a
// bare error, so the sink and the status API can report a stable reason.
type SessionError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// New creates a SessionError with a code and message
func New(code, message string) *SessionError {
	return &SessionError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause
func Wrap(code string, err error, message string) *SessionError {
	return &SessionError{Code: code, Message: message, Cause: err}
}

// CodeOf returns the stable code carried anywhere in the error chain,
// or CodeInternal when none is present
func CodeOf(err error) string {
	var sessionErr *SessionError
	if stderrors.As(err, &sessionErr) {
		return sessionErr.Code
	}
	return CodeInternal
}

// IsSessionError reports whether the chain carries a SessionError
func IsSessionError(err error) bool {
	var sessionErr *SessionError
	return stderrors.As(err, &sessionErr)
}

// Stable failure codes surfaced to the sink and the status API
const (
	CodeConfigInvalid       = "CONFIG_INVALID"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeNoQualifyingRecords = "NO_QUALIFYING_RECORDS"
	CodeScanFailed          = "SCAN_FAILED"
	CodePersistFailed       = "PERSIST_FAILED"
	CodeCancelled           = "CANCELLED"
	CodeInternal            = "INTERNAL"
)

// ConfigInvalid flags an unusable configuration
func ConfigInvalid(message string) *SessionError {
	return New(CodeConfigInvalid, message)
}

// StoreUnavailable flags a record store that could not be reached
func StoreUnavailable(cause error) *SessionError {
	return Wrap(CodeStoreUnavailable, cause, "record store unavailable")
}

// NoQualifyingRecords flags a corpus too thin to research
func NoQualifyingRecords(count int) *SessionError {
	return New(CodeNoQualifyingRecords, fmt.Sprintf("only %d qualifying records, nothing to research", count))
}

// ScanFailed flags a pattern-scan stage failure
func ScanFailed(cause error) *SessionError {
	return Wrap(CodeScanFailed, cause, "pattern scan failed")
}

// PersistFailed flags a session or finding write failure
func PersistFailed(cause error) *SessionError {
	return Wrap(CodePersistFailed, cause, "persisting session state failed")
}

// Cancelled flags a session abandoned by context cancellation
func Cancelled(cause error) *SessionError {
	return Wrap(CodeCancelled, cause, "session cancelled")
}
