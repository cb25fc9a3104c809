package errors

import (
	stderrors "errors"
	"fmt"
)

// KBError is the structured error type for academykb.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_202_IO_FAILURE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context such as the file path.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable marks transient provider failures.
	Retryable bool

	// Suggestion is an actionable hint for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *KBError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches another KBError by code.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a KBError. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error, reusing its message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// UnsupportedFormat reports a file extension with no registered reader.
func UnsupportedFormat(path, ext string) *KBError {
	return New(ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported file format %q", ext), nil).
		WithDetail("path", path)
}

// IOFailure reports an unreadable or corrupt file.
func IOFailure(path string, cause error) *KBError {
	return New(ErrCodeIOFailure, "failed to read "+path, cause).WithDetail("path", path)
}

// EmbeddingFailure reports exhausted retries or a non-transient provider error.
func EmbeddingFailure(message string, cause error) *KBError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreWriteFailure reports a rejected write to the vector or tracking store.
func StoreWriteFailure(message string, cause error) *KBError {
	return New(ErrCodeStoreWrite, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KBError {
	return New(ErrCodeInvalidInput, message, cause)
}

// As finds the first KBError in the chain.
func As(err error) (*KBError, bool) {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}

// IsRetryable reports whether any KBError in the chain is retryable.
func IsRetryable(err error) bool {
	if ke, ok := As(err); ok {
		return ke.Retryable
	}
	return false
}

// GetCode extracts the code of the first KBError in the chain.
func GetCode(err error) string {
	if ke, ok := As(err); ok {
		return ke.Code
	}
	return ""
}

// GetKind maps any error onto the indexing failure taxonomy.
// Errors that carry no KBError are classified as internal.
func GetKind(err error) Kind {
	if err == nil {
		return ""
	}
	if ke, ok := As(err); ok {
		return kindFromCode(ke.Code)
	}
	return KindInternal
}
