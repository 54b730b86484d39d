// Package errors provides structured error types for scdctl.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeGraph         ErrorCode = "GRAPH_ERROR"
	ErrCodeState         ErrorCode = "STATE_ERROR"
	ErrCodeCapability    ErrorCode = "CAPABILITY_ERROR"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeGuard         ErrorCode = "GUARD_REJECTED"

	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeLocked     ErrorCode = "STATE_LOCKED"
	ErrCodeBackend    ErrorCode = "BACKEND_ERROR"
	ErrCodeParse      ErrorCode = "PARSE_ERROR"
)

// Error is the base error type for scdctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ConfigurationError reports a missing, unparseable or incomplete
// configuration file or profile.
func ConfigurationError(message string, cause error) *Error {
	return Wrap(ErrCodeConfiguration, message, cause)
}

// CycleError reports a dependency cycle detected at the given product.
func CycleError(product string) *Error {
	return &Error{
		Code:    ErrCodeGraph,
		Message: fmt.Sprintf("dependency cycle detected at %q", product),
		Details: map[string]interface{}{
			"product": product,
		},
	}
}

// SubsetCycleError reports products left unordered because they form a cycle
// inside the requested subset.
func SubsetCycleError(products []string) *Error {
	return &Error{
		Code:    ErrCodeGraph,
		Message: fmt.Sprintf("dependency cycle detected among %v", products),
		Details: map[string]interface{}{
			"products": products,
		},
	}
}

// UnknownProductError reports a product name not present in the catalog.
func UnknownProductError(product string) *Error {
	return &Error{
		Code:    ErrCodeGraph,
		Message: fmt.Sprintf("unknown product %q", product),
		Details: map[string]interface{}{
			"product": product,
		},
	}
}

// DanglingDependencyError reports a dependency on a product the catalog does
// not declare.
func DanglingDependencyError(product, dependency string) *Error {
	return &Error{
		Code:    ErrCodeGraph,
		Message: fmt.Sprintf("%s depends on unknown product %q", product, dependency),
		Details: map[string]interface{}{
			"product":    product,
			"dependency": dependency,
		},
	}
}

// MappingError reports an invalid parameter mapping entry.
func MappingError(product, parameter, reference, reason string) *Error {
	return &Error{
		Code:    ErrCodeGraph,
		Message: fmt.Sprintf("%s: parameter %s maps to %q: %s", product, parameter, reference, reason),
		Details: map[string]interface{}{
			"product":   product,
			"parameter": parameter,
			"reference": reference,
		},
	}
}

// StateError reports recorded state that does not allow the operation to
// proceed, such as an undeployed dependency or a missing registration.
func StateError(message string, details map[string]interface{}) *Error {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &Error{
		Code:    ErrCodeState,
		Message: message,
		Details: details,
	}
}

// CapabilityError wraps a failed remote call with the operation being attempted.
func CapabilityError(operation, resource string, err error) *Error {
	msg := fmt.Sprintf("%s failed", operation)
	if resource != "" {
		msg = fmt.Sprintf("%s %s failed", operation, resource)
	}
	return &Error{
		Code:    ErrCodeCapability,
		Message: msg,
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
			"resource":  resource,
		},
	}
}

// LifecycleTimeout reports a polled record that did not reach a terminal
// status within the allowed wait.
func LifecycleTimeout(recordID string, waited time.Duration) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("record %s did not complete within %s", recordID, waited),
		Details: map[string]interface{}{
			"record_id": recordID,
			"waited":    waited.String(),
		},
	}
}

// GuardRejection reports a destructive operation attempted without force or dry-run.
func GuardRejection(operation string) *Error {
	return &Error{
		Code:    ErrCodeGuard,
		Message: fmt.Sprintf("%s is destructive; pass --force to proceed or --dry-run to preview", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// LockInfo contains metadata about a lock
type LockInfo struct {
	ID        string
	Path      string
	Who       string
	Operation string
	Created   time.Time
}

// StateLocked creates a state locked error
func StateLocked(lockInfo LockInfo) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Message: "state is locked",
		Details: map[string]interface{}{
			"lock_id":   lockInfo.ID,
			"locked_by": lockInfo.Who,
			"operation": lockInfo.Operation,
			"created":   lockInfo.Created,
		},
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is checks if the error, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// CodeOf returns the code of the outermost structured error in the chain, or
// an empty code when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
