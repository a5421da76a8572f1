package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to the internal cause")
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithMessageLeavesSentinelUntouched(t *testing.T) {
	custom := ErrNotFound.WithMessage("no such event")

	if custom.Message != "no such event" {
		t.Fatalf("unexpected message: %s", custom.Message)
	}
	if ErrNotFound.Message != "Resource not found" {
		t.Fatalf("sentinel message mutated: %s", ErrNotFound.Message)
	}
	if custom.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", custom.StatusCode)
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrEventNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}

	if FromError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestNewValidation(t *testing.T) {
	cause := stdErrors.New("title failed on required")
	err := NewValidation("title is required", cause)

	if err.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
	if err.Message != "title is required" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected validation error to unwrap to its cause")
	}
	if ErrValidation.Message != "Validation failed" || ErrValidation.Internal != nil {
		t.Fatal("expected sentinel to stay untouched")
	}
}

func TestNewValidationDefaults(t *testing.T) {
	err := NewValidation("", nil)
	if err.Code != ErrValidation.Code || err.Message != ErrValidation.Message {
		t.Fatalf("unexpected error: %+v", err)
	}
	if err.Internal != nil {
		t.Fatal("expected no internal error")
	}
}
