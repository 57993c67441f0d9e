package errors

import (
	"fmt"
	"testing"
)

func TestErrorTypes(t *testing.T) {
	// The wire protocol depends on these names
	expected := map[ErrorType]string{
		ErrorTypeAuth:       "auth",
		ErrorTypeValidation: "validation",
		ErrorTypeNotFound:   "not_found",
		ErrorTypeTimeout:    "timeout",
		ErrorTypeConnection: "connection",
		ErrorTypeIO:         "io",
		ErrorTypeInternal:   "internal",
	}

	for errType, name := range expected {
		if string(errType) != name {
			t.Errorf("Expected error type '%s', got '%s'", name, errType)
		}
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("slot", "must be between 1 and 10")

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected Type to be '%s', got '%s'", ErrorTypeValidation, err.Type)
	}

	if err.Field != "slot" {
		t.Errorf("Expected Field to be 'slot', got '%s'", err.Field)
	}

	if err.Error() != "validation failed for slot: must be between 1 and 10" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	if !IsValidation(err) {
		t.Error("IsValidation should return true for validation errors")
	}

	if IsNotFound(err) {
		t.Error("IsNotFound should return false for validation errors")
	}
}

func TestNewIOError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIOError("write save state", cause)

	if err.Error() != "write save state: disk full" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	if err.Data != cause {
		t.Errorf("Expected Data to hold the cause, got %v", err.Data)
	}

	if !IsIO(err) {
		t.Error("IsIO should return true for io errors")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"auth", NewAuthError("token expired"), IsAuth},
		{"not found", NewNotFoundError("tool not found", nil), IsNotFound},
		{"timeout", NewTimeoutError("call timed out"), IsTimeout},
		{"connection", NewConnectionError("connection lost"), IsConnection},
		{"internal", NewInternalError("boom"), IsInternal},
		{"wrapped", fmt.Errorf("outer: %w", NewAuthError("inner")), IsAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate returned false for %v", tt.err)
			}
		})
	}

	if IsAuth(fmt.Errorf("plain error")) {
		t.Error("IsAuth should return false for untyped errors")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	wrapped := Wrap(NewNotFoundError("slot 3 not found", nil), "load state")
	if !IsNotFound(wrapped) {
		t.Error("Wrap should preserve the error type")
	}
	if wrapped.Error() != "load state: slot 3 not found" {
		t.Errorf("Unexpected wrapped message: %s", wrapped.Error())
	}

	plain := Wrap(fmt.Errorf("plain"), "context")
	if !IsInternal(plain) {
		t.Error("Wrap should classify untyped errors as internal")
	}
}

func TestTypeOfAndFromWire(t *testing.T) {
	if TypeOf(NewTimeoutError("late")) != ErrorTypeTimeout {
		t.Error("TypeOf should report timeout")
	}
	if TypeOf(fmt.Errorf("plain")) != ErrorTypeInternal {
		t.Error("TypeOf should default to internal")
	}

	err := FromWire("auth", "token expired")
	if !IsAuth(err) || err.Message != "token expired" {
		t.Errorf("FromWire lost information: %+v", err)
	}

	unknown := FromWire("something-new", "message")
	if unknown.Type != ErrorTypeInternal {
		t.Errorf("Unknown wire types should map to internal, got %s", unknown.Type)
	}
}
