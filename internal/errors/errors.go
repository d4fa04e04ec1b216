// Package errors provides structured error types for the hot spot engine.
// All errors carry a category, code, message, and optional details so that
// callers can branch on the kind of failure without parsing messages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the kind of failure.
type ErrorCategory string

const (
	ErrCategoryConfig    ErrorCategory = "CONFIG"
	ErrCategoryObjective ErrorCategory = "OBJECTIVE"
	ErrCategorySearch    ErrorCategory = "SEARCH"
	ErrCategoryState     ErrorCategory = "STATE"
	ErrCategoryStorage   ErrorCategory = "STORAGE"
	ErrCategoryInternal  ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Config codes
	CodeEmptyTargets          = "EMPTY_TARGETS"
	CodeDuplicateColumns      = "DUPLICATE_COLUMNS"
	CodeMissingColumns        = "MISSING_COLUMNS"
	CodeInvalidLimit          = "INVALID_LIMIT"
	CodeInvalidEnum           = "INVALID_ENUM"
	CodeInvalidSearchTerm     = "INVALID_SEARCH_TERM"
	CodeOverlappingDimensions = "OVERLAPPING_DIMENSIONS"
	CodeEmptyDataset          = "EMPTY_DATASET"
	CodeInvalidLag            = "INVALID_LAG"
	CodeInvalidConfig         = "INVALID_CONFIG"

	// Objective codes
	CodeIncompatibleObjective = "INCOMPATIBLE_OBJECTIVE"
	CodeCombinationFailed     = "COMBINATION_FAILED"

	// Search codes
	CodeEmptyResult = "EMPTY_RESULT"

	// State codes
	CodeNotReady = "NOT_READY"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// HotspotError is the structured error type used throughout the engine.
type HotspotError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *HotspotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *HotspotError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *HotspotError) Is(target error) bool {
	var t *HotspotError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new HotspotError.
func New(category ErrorCategory, code, message string) *HotspotError {
	return &HotspotError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new HotspotError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *HotspotError {
	return &HotspotError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *HotspotError) WithDetails(details map[string]interface{}) *HotspotError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a HotspotError.
func GetCategory(err error) ErrorCategory {
	var he *HotspotError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a HotspotError.
func GetCode(err error) string {
	var he *HotspotError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// GetDetails extracts the details of the outermost HotspotError in a chain.
func GetDetails(err error) map[string]interface{} {
	var he *HotspotError
	if errors.As(err, &he) {
		return he.Details
	}
	return nil
}

// Targets for errors.Is.
var (
	ErrIncompatibleObjective = New(ErrCategoryObjective, CodeIncompatibleObjective, "")
	ErrCombinationFailed     = New(ErrCategoryObjective, CodeCombinationFailed, "")
	ErrEmptyResult           = New(ErrCategorySearch, CodeEmptyResult, "")
	ErrNotReady              = New(ErrCategoryState, CodeNotReady, "")
)

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool {
	return GetCategory(err) == ErrCategoryConfig
}

// IsIncompatibleObjective reports whether err came from a failed objective probe.
func IsIncompatibleObjective(err error) bool {
	return errors.Is(err, ErrIncompatibleObjective)
}

// IsEmptyResult reports whether err is the recoverable zero-match search outcome.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrEmptyResult)
}

// IsNotReady reports whether err was raised by an operation invoked before
// the analysis produced its output.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// Convenience constructors for common errors.

func NewConfigError(code, message string) *HotspotError {
	return New(ErrCategoryConfig, code, message)
}

func NewObjectiveError(code, message string, cause error) *HotspotError {
	return Wrap(ErrCategoryObjective, code, message, cause)
}

func NewSearchError(code, message string) *HotspotError {
	return New(ErrCategorySearch, code, message)
}

func NewStateError(code, message string) *HotspotError {
	return New(ErrCategoryState, code, message)
}

func NewStorageError(code, message string, cause error) *HotspotError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *HotspotError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
