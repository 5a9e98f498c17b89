package errors

import (
	"errors"
	"fmt"
)

// NoteError is the structured error type for notesearch.
// It provides rich context for error handling, logging, and user presentation.
type NoteError struct {
	// Code is the unique error code (e.g., "ERR_301_INVALID_STATE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, State, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinel values for errors.Is comparisons. Matching is by code, so any
// NoteError carrying the same code matches. Never mutate these.
var (
	// ErrInvalidState matches operations attempted on a closed index guard.
	ErrInvalidState = &NoteError{Code: ErrCodeInvalidState}
	// ErrStorageIO matches failures surfaced by the underlying index writer.
	ErrStorageIO = &NoteError{Code: ErrCodeStorageIO}
	// ErrAcquireTimeout matches bounded permit acquisitions that gave up.
	ErrAcquireTimeout = &NoteError{Code: ErrCodeAcquireTimeout}
	// ErrIndexLocked matches an index directory held by another process.
	ErrIndexLocked = &NoteError{Code: ErrCodeIndexLocked}
)

// Error implements the error interface.
func (e *NoteError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *NoteError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with NoteError.
func (e *NoteError) Is(target error) bool {
	if t, ok := target.(*NoteError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *NoteError) WithDetail(key, value string) *NoteError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *NoteError) WithSuggestion(suggestion string) *NoteError {
	e.Suggestion = suggestion
	return e
}

// New creates a new NoteError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *NoteError {
	return &NoteError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a NoteError from an existing error.
// The error's message becomes the NoteError message.
func Wrap(code string, err error) *NoteError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *NoteError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *NoteError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *NoteError {
	return New(ErrCodeInternal, message, cause)
}

// InvalidState reports that op was attempted after the index guard closed.
func InvalidState(op string) *NoteError {
	return New(ErrCodeInvalidState, "index writer already closed", nil).
		WithDetail("op", op).
		WithSuggestion("restart the process to open the index again")
}

// StorageIO wraps a failure raised by the underlying index writer during op.
func StorageIO(op string, cause error) *NoteError {
	return New(ErrCodeStorageIO, fmt.Sprintf("%s: %v", op, cause), cause).
		WithDetail("op", op)
}

// AcquireTimeout reports that op gave up waiting for a writer permit, either
// because its deadline passed or because its context was cancelled.
func AcquireTimeout(op string, cause error) *NoteError {
	return New(ErrCodeAcquireTimeout, op+": gave up waiting for writer permit", cause).
		WithDetail("op", op)
}

// IndexLocked reports that another process owns the index at path.
func IndexLocked(path string) *NoteError {
	return New(ErrCodeIndexLocked, "index is locked by another process", nil).
		WithDetail("path", path).
		WithSuggestion("stop the other notesearch process or use a different user directory")
}

// IsInvalidState reports whether err is (or wraps) an invalid-state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsStorageIO reports whether err is (or wraps) a storage I/O error.
func IsStorageIO(err error) bool {
	return errors.Is(err, ErrStorageIO)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a NoteError with Retryable flag set.
func IsRetryable(err error) bool {
	var ne *NoteError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ne *NoteError
	if errors.As(err, &ne) {
		return ne.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a NoteError.
// Returns empty string if not a NoteError.
func GetCode(err error) string {
	var ne *NoteError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return ""
}

// GetCategory extracts the category from a NoteError.
// Returns empty string if not a NoteError.
func GetCategory(err error) Category {
	var ne *NoteError
	if errors.As(err, &ne) {
		return ne.Category
	}
	return ""
}
