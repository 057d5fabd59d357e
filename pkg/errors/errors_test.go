package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestMetadataFor_KnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeIdempotency, http.StatusOK, false},
		{CodeAtomicity, http.StatusServiceUnavailable, true},
		{CodeDependency, http.StatusServiceUnavailable, true},
		{CodeInternal, http.StatusInternalServerError, true},
	}

	for _, tc := range tests {
		meta := MetadataFor(tc.code)
		if meta.HTTPStatus != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.code, meta.HTTPStatus, tc.status)
		}
		if meta.Retryable != tc.retryable {
			t.Fatalf("%s: retryable = %v, want %v", tc.code, meta.Retryable, tc.retryable)
		}
	}
}

func TestMetadataFor_UnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOT_A_CODE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	err := Wrap(CodeAtomicity, cause, "credit balance")

	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	if err.Code() != CodeAtomicity {
		t.Fatalf("code = %s", err.Code())
	}
}

func TestAs(t *testing.T) {
	err := New(CodeValidation, "amount must be non-negative")
	wrapped := Wrap(CodeDependency, err, "outer")

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeDependency {
		t.Fatalf("code = %s", typed.Code())
	}

	if As(stdErrors.New("plain")) != nil {
		t.Fatal("plain error should not convert")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(New(CodeValidation, "bad amount")) {
		t.Fatal("validation errors are not retryable")
	}
	if !IsRetryable(New(CodeAtomicity, "rolled back")) {
		t.Fatal("atomicity failures must be retryable")
	}
	if !IsRetryable(stdErrors.New("unknown")) {
		t.Fatal("unknown errors count as retryable")
	}
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
}
