package shared

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error classification returned to callers
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	CodeProviderTechnical   ErrorCode = "PROVIDER_TECHNICAL"
	CodeProviderDeclined    ErrorCode = "PROVIDER_DECLINED"
	CodeUnexpected          ErrorCode = "UNEXPECTED"
)

// Error is a domain error carrying a stable code. Handlers translate the code
// to an HTTP status; the message is safe to surface to the caller.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on the error code so errors.Is works against sentinel-style checks
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func NewErrorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause while keeping the caller-facing code and message
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// ErrValidation and friends are comparison targets for errors.Is
var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrForbidden           = &Error{Code: CodeForbidden}
	ErrConflict            = &Error{Code: CodeConflict}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance}
	ErrProviderTechnical   = &Error{Code: CodeProviderTechnical}
	ErrProviderDeclined    = &Error{Code: CodeProviderDeclined}
	ErrUnexpected          = &Error{Code: CodeUnexpected}
)

// CodeOf extracts the domain error code, defaulting to UNEXPECTED
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeUnexpected
}
