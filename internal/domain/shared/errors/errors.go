// Package errors defines the error taxonomy shared by the server, the client and the wire protocol.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorType defines the type of error
type ErrorType string

const (
	// ErrorTypeAuth indicates a missing, expired or invalid bearer token
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeValidation indicates malformed call params or a rejected asset
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound indicates an unknown tool, session or save slot
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout indicates no response arrived within the call deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection indicates the underlying connection was lost
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeIO indicates a storage read or write failure
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeInternal indicates an unexpected server failure
	ErrorTypeInternal ErrorType = "internal"
)

// MCPError is the typed error carried through dispatch and across the wire.
type MCPError struct {
	Type    ErrorType
	Message string
	// Field names the offending parameter or validation rule, if any.
	Field string
	Data  interface{}
}

// Error returns the error message
func (e *MCPError) Error() string {
	return e.Message
}

// NewAuthError creates a new authentication error
func NewAuthError(message string) *MCPError {
	return &MCPError{Type: ErrorTypeAuth, Message: message}
}

// NewValidationError creates a validation error naming the offending field or rule.
func NewValidationError(field, message string) *MCPError {
	return &MCPError{
		Type:    ErrorTypeValidation,
		Field:   field,
		Message: fmt.Sprintf("validation failed for %s: %s", field, message),
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, data interface{}) *MCPError {
	return &MCPError{Type: ErrorTypeNotFound, Message: message, Data: data}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string) *MCPError {
	return &MCPError{Type: ErrorTypeTimeout, Message: message}
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string) *MCPError {
	return &MCPError{Type: ErrorTypeConnection, Message: message}
}

// NewIOError classifies a storage failure. The cause is kept in Data.
func NewIOError(message string, cause error) *MCPError {
	msg := message
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", message, cause)
	}
	return &MCPError{Type: ErrorTypeIO, Message: msg, Data: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(message string) *MCPError {
	return &MCPError{Type: ErrorTypeInternal, Message: message}
}

// FromWire rebuilds a typed error from an error string and its wire type name.
func FromWire(errorType, message string) *MCPError {
	t := ErrorType(errorType)
	switch t {
	case ErrorTypeAuth, ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeTimeout,
		ErrorTypeConnection, ErrorTypeIO, ErrorTypeInternal:
	default:
		t = ErrorTypeInternal
	}
	return &MCPError{Type: t, Message: message}
}

// Wrap wraps an error with additional context, keeping its type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if !errors.As(err, &mcpErr) {
		return &MCPError{
			Type:    ErrorTypeInternal,
			Message: fmt.Sprintf("%s: %v", message, err),
		}
	}

	return &MCPError{
		Type:    mcpErr.Type,
		Message: fmt.Sprintf("%s: %s", message, mcpErr.Message),
		Field:   mcpErr.Field,
		Data:    mcpErr.Data,
	}
}

// TypeOf returns the taxonomy type of err, or ErrorTypeInternal for untyped errors.
func TypeOf(err error) ErrorType {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr.Type
	}
	return ErrorTypeInternal
}

func is(err error, t ErrorType) bool {
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr.Type == t
	}
	return false
}

// IsAuth checks if an error is an authentication error
func IsAuth(err error) bool { return is(err, ErrorTypeAuth) }

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return is(err, ErrorTypeValidation) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return is(err, ErrorTypeNotFound) }

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool { return is(err, ErrorTypeTimeout) }

// IsConnection checks if an error is a connection error
func IsConnection(err error) bool { return is(err, ErrorTypeConnection) }

// IsIO checks if an error is a storage error
func IsIO(err error) bool { return is(err, ErrorTypeIO) }

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool { return is(err, ErrorTypeInternal) }
