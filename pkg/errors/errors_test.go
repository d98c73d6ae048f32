package errors

import (
	stdErrors "errors"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
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

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
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
}

func TestNewForbiddenKeepsSentinelIdentity(t *testing.T) {
	err := NewForbidden("only the owner may edit promise fields")
	if err.Code != ErrForbidden.Code {
		t.Fatalf("expected %s, got %s", ErrForbidden.Code, err.Code)
	}
	if err.Message != "only the owner may edit promise fields" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if !stdErrors.Is(err, ErrForbidden) {
		t.Fatal("expected errors.Is to match the forbidden sentinel")
	}
}

func TestNotFoundOrForbiddenIsDistinctKind(t *testing.T) {
	if stdErrors.Is(ErrNotFoundOrForbidden, ErrNotFound) {
		t.Fatal("expected NOT_FOUND_OR_FORBIDDEN to be a distinct kind")
	}
	if ErrNotFoundOrForbidden.StatusCode != ErrNotFound.StatusCode {
		t.Fatal("expected the conflated kind to keep the 404 external shape")
	}
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("deadline must be a valid RFC 3339 timestamp")
	if err.Code != ErrValidation.Code {
		t.Fatalf("expected %s, got %s", ErrValidation.Code, err.Code)
	}
	if err.StatusCode != ErrValidation.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}
