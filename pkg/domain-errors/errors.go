// Package domainerrors carries coded errors from services to transports.
//
// Services return *Error values (via New or Wrap) so handlers can translate a
// failure into a response without inspecting messages. Stores return
// infrastructure sentinels (see pkg/platform/sentinel) which services wrap
// with a code that describes what the caller should do next.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a failure for the caller.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodePreconditionFailed Code = "precondition_failed"
	CodeInvalidState       Code = "invalid_state"
	CodeContention         Code = "contention"
	CodeTimeout            Code = "timeout"
	CodeDependencyFailed   Code = "dependency_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Err is optional and kept for errors.Is/As.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost coded error carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsRetryable reports whether repeating the same request may succeed.
// Contention, timeouts and collaborator outages are transient; everything
// else means the input or the stored state has to change first.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeContention, CodeTimeout, CodeDependencyFailed:
		return true
	default:
		return false
	}
}

// ToHTTPStatus maps a code to the status used by the JSON API.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case CodeContention:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeDependencyFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
