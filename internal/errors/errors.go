package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies an error condition that callers branch on
type ErrorCode string

const (
	// Desktop entry errors
	ErrCodeParse    ErrorCode = "PARSE_ERROR"
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Compositor errors
	ErrCodeBackendUnavailable    ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeBackendTimeout        ErrorCode = "BACKEND_TIMEOUT"
	ErrCodeBackendProtocol       ErrorCode = "BACKEND_PROTOCOL_ERROR"
	ErrCodeUnsupportedCompositor ErrorCode = "UNSUPPORTED_COMPOSITOR"

	// Transport errors
	ErrCodeTransportBindConflict ErrorCode = "TRANSPORT_BIND_CONFLICT"
	ErrCodeTransportUnreachable  ErrorCode = "TRANSPORT_UNREACHABLE"

	// Command errors
	ErrCodeLaunchFailure   ErrorCode = "LAUNCH_FAILURE"
	ErrCodeInvalidCommand  ErrorCode = "INVALID_COMMAND"
	ErrCodeNotVisible      ErrorCode = "NOT_VISIBLE"
	ErrCodeNothingSelected ErrorCode = "NOTHING_SELECTED"

	// General errors
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// Process exit codes used by the CLI
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitAlreadyRunning = 2
	ExitNotRunning     = 3
)

// Error is a structured error carrying a code and optional context
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new coded error
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new coded error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Is reports whether any error in err's chain carries code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the outermost error code from an error chain
func GetCode(err error) ErrorCode {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Message returns the human readable part of a coded error, or err.Error()
func Message(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Message
	}
	return err.Error()
}

// ExitCode maps an error to the CLI process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrCodeTransportBindConflict):
		return ExitAlreadyRunning
	case Is(err, ErrCodeTransportUnreachable):
		return ExitNotRunning
	default:
		return ExitFailure
	}
}
