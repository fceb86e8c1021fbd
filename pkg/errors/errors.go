// Package errors provides the structured error taxonomy shared by every storage
// adapter and the append-log table module.
//
// Vendor SDKs report a missing object in very different shapes (typed API
// errors, error-code fields, JSON error summaries). Adapters normalize all of
// them into a StoreError so callers only ever test for a handful of codes.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for storage operations.
type ErrorCode string

const (
	// Object and binding errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Credential errors
	ErrCodeAuthFailure ErrorCode = "AUTH_FAILURE"

	// Anything the adapter could not classify
	ErrCodeTransient ErrorCode = "TRANSIENT_OR_UNKNOWN"

	// Local validation errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeInvalidPath   ErrorCode = "INVALID_PATH"

	// Multi-object operations
	ErrCodePartialFailure   ErrorCode = "PARTIAL_FAILURE"
	ErrCodeOperationPending ErrorCode = "OPERATION_PENDING"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryStorage       ErrorCategory = "storage"
	CategoryAuth          ErrorCategory = "auth"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// StoreError represents a normalized storage error with context.
type StoreError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	// Component is the backend name ("s3", "blob", "dropbox", ...).
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	Path      string `json:"path,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path=%s)", e.Path)
	}
	return b.String()
}

// Unwrap returns the underlying vendor error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StoreError with the same code.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *StoreError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("Path=%s", e.Path))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("StoreError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *StoreError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new StoreError with default values for the code.
func NewError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrNotFound         = &StoreError{Code: ErrCodeNotFound}
	ErrAlreadyExists    = &StoreError{Code: ErrCodeAlreadyExists}
	ErrAuthFailure      = &StoreError{Code: ErrCodeAuthFailure}
	ErrOperationPending = &StoreError{Code: ErrCodeOperationPending}
)

// NotFound builds the normalized "object absent" error.
func NotFound(component, operation, path string) *StoreError {
	return NewError(ErrCodeNotFound, "object not found").
		WithComponent(component).
		WithOperation(operation).
		WithPath(path)
}

// AlreadyExists builds the error returned for doNotOverwrite violations and
// bucket/container creation races.
func AlreadyExists(component, operation, path string) *StoreError {
	return NewError(ErrCodeAlreadyExists, "object already exists").
		WithComponent(component).
		WithOperation(operation).
		WithPath(path)
}

// Wrap classifies nothing: it records cause as a transient/unknown failure
// unless cause is already a StoreError, which is returned unchanged.
func Wrap(cause error, component, operation, path string) error {
	if cause == nil {
		return nil
	}
	var se *StoreError
	if stderr.As(cause, &se) {
		return cause
	}
	return NewError(ErrCodeTransient, cause.Error()).
		WithComponent(component).
		WithOperation(operation).
		WithPath(path).
		WithCause(cause)
}

// CodeOf returns the code of the first StoreError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if stderr.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return ""
	}
	return ErrCodeTransient
}

// IsNotFound reports whether err is the normalized NotFound signal.
func IsNotFound(err error) bool { return stderr.Is(err, ErrNotFound) }

// IsAlreadyExists reports whether err is an AlreadyExists error.
func IsAlreadyExists(err error) bool { return stderr.Is(err, ErrAlreadyExists) }

// IsAuthFailure reports whether err is an AuthFailure error.
func IsAuthFailure(err error) bool { return stderr.Is(err, ErrAuthFailure) }

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeNotFound, ErrCodeAlreadyExists:
		return CategoryStorage
	case ErrCodeAuthFailure:
		return CategoryAuth
	case ErrCodeInvalidConfig, ErrCodeInvalidPath:
		return CategoryConfiguration
	case ErrCodePartialFailure, ErrCodeOperationPending:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether the code describes a condition that may
// clear up on its own. The adapter layer never retries; this is a hint for
// callers and for the async-job poller.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeTransient, ErrCodeOperationPending:
		return true
	default:
		return false
	}
}

// WithContext adds contextual information to an error.
func (e *StoreError) WithContext(key, value string) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the backend component.
func (e *StoreError) WithComponent(component string) *StoreError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *StoreError) WithOperation(operation string) *StoreError {
	e.Operation = operation
	return e
}

// WithPath sets the object path.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// WithCause sets the underlying cause.
func (e *StoreError) WithCause(cause error) *StoreError {
	e.Cause = cause
	return e
}
