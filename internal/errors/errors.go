package errors

import (
	"errors"
	"fmt"
)

// ReqError is the structured error type for reqfind.
// It carries the category reported to callers together with the underlying cause.
type ReqError struct {
	// Code is the unique error code (e.g., "ERR_211_ITEM_PUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (ParseError, StoreItemError, ...).
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

// Error implements the error interface.
func (e *ReqError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ReqError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ReqError.
func (e *ReqError) Is(target error) bool {
	if t, ok := target.(*ReqError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ReqError) WithDetail(key, value string) *ReqError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ReqError) WithSuggestion(suggestion string) *ReqError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReqError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ReqError {
	return &ReqError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ReqError from an existing error.
// The error's message becomes the ReqError message.
func Wrap(code string, err error) *ReqError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ParseError creates a URL decomposition error.
func ParseError(message string, cause error) *ReqError {
	return New(ErrCodeInvalidURL, message, cause)
}

// StoreItemError creates an error for a single item of a bulk operation.
func StoreItemError(code, message string, cause error) *ReqError {
	return New(code, message, cause)
}

// StoreFatalError creates an error for an index store that cannot be used at all.
func StoreFatalError(code, message string, cause error) *ReqError {
	return New(code, message, cause)
}

// ProtocolError creates an error for a malformed or unknown task message.
func ProtocolError(code, message string, cause error) *ReqError {
	return New(code, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ReqError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ReqError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a ReqError with Retryable flag set.
func IsRetryable(err error) bool {
	var re *ReqError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors poison the worker.
func IsFatal(err error) bool {
	var re *ReqError
	if errors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ReqError.
// Returns empty string if not a ReqError.
func GetCode(err error) string {
	var re *ReqError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a ReqError.
// Errors that are not ReqErrors are reported as internal.
func GetCategory(err error) Category {
	var re *ReqError
	if errors.As(err, &re) {
		return re.Category
	}
	return CategoryInternal
}

// Info is the wire form of an error inside a task response.
type Info struct {
	Category Category `json:"category"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message"`
}

// Error implements the error interface so decoded responses can be returned as errors.
func (i *Info) Error() string {
	return fmt.Sprintf("%s: %s", i.Category, i.Message)
}

// ToInfo converts any error into its wire form.
func ToInfo(err error) *Info {
	if err == nil {
		return nil
	}
	var re *ReqError
	if errors.As(err, &re) {
		return &Info{Category: re.Category, Code: re.Code, Message: re.Message}
	}
	return &Info{Category: CategoryInternal, Code: ErrCodeInternal, Message: err.Error()}
}

// FromInfo rebuilds an error from its wire form, keeping the reported category.
func FromInfo(info *Info) *ReqError {
	if info == nil {
		return nil
	}
	e := New(info.Code, info.Message, nil)
	if info.Category != "" {
		e.Category = info.Category
	}
	return e
}
