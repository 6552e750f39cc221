package dds

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

func TestDdsError(t *testing.T) {
	err := NewDdsError(ErrorCodeTimeout, "write blocked")

	if err.Code() != ErrorCodeTimeout {
		t.Errorf("Code() = %d, want %d", err.Code(), ErrorCodeTimeout)
	}

	if err.Kind() != KindTimeout {
		t.Errorf("Kind() = %v, want %v", err.Kind(), KindTimeout)
	}

	if err.Message() != "write blocked" {
		t.Errorf("Message() = %q, want %q", err.Message(), "write blocked")
	}

	expected := "timeout: write blocked (code: -10)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestDdsErrorTypeAssertion(t *testing.T) {
	var err error = NewDdsError(ErrorCodeAlreadyDeleted, "reader gone")

	ddsErr, ok := err.(DdsError)
	if !ok {
		t.Fatal("type assertion to DdsError failed")
	}

	if ddsErr.Kind() != KindAlreadyDestroyed {
		t.Errorf("Kind() = %v, want %v", ddsErr.Kind(), KindAlreadyDestroyed)
	}
}

func TestDdsErrorWithErrors(t *testing.T) {
	err := NewDdsError(ErrorCodeInconsistentPolicy, "reader qos")

	// errors.Is matches by kind (code and message are ignored)
	if !errors.Is(err, NewDdsError(ErrorCodeImmutablePolicy, "different message")) {
		t.Error("errors.Is should match DdsError with same kind")
	}

	if errors.Is(err, NewDdsError(ErrorCodeTimeout, "reader qos")) {
		t.Error("errors.Is should not match DdsError with different kind")
	}

	if !errors.Is(err, ErrInvalidQos) {
		t.Error("errors.Is should match sentinel ErrInvalidQos")
	}

	var targetErr DdsError
	if !errors.As(err, &targetErr) {
		t.Error("errors.As should work for DdsError")
	}

	if targetErr.Code() != ErrorCodeInconsistentPolicy {
		t.Errorf("Code() after errors.As = %d, want %d", targetErr.Code(), ErrorCodeInconsistentPolicy)
	}
}

func TestDdsErrorIsNoRecursion(t *testing.T) {
	inner := NewDdsError(ErrorCodeOutOfResources, "inner failure")
	wrapped := fmt.Errorf("outer: %w", inner)

	if !errors.Is(wrapped, ErrResourceExhausted) {
		t.Error("errors.Is should find ErrResourceExhausted through wrapped chain")
	}

	doubleWrapped := fmt.Errorf("double: %w", wrapped)
	if !errors.Is(doubleWrapped, ErrResourceExhausted) {
		t.Error("errors.Is should find ErrResourceExhausted through double-wrapped chain")
	}

	if errors.Is(doubleWrapped, ErrTimeout) {
		t.Error("errors.Is should not match different kind in chain")
	}
}

func TestErrorCodeConstants(t *testing.T) {
	// Codes must stay equal to the native return codes
	tests := []struct {
		code     ErrorCode
		expected int32
	}{
		{ErrorCodeOK, 0},
		{ErrorCodeError, -1},
		{ErrorCodeUnsupported, -2},
		{ErrorCodeBadParameter, -3},
		{ErrorCodePreconditionNotMet, -4},
		{ErrorCodeOutOfResources, -5},
		{ErrorCodeNotEnabled, -6},
		{ErrorCodeImmutablePolicy, -7},
		{ErrorCodeInconsistentPolicy, -8},
		{ErrorCodeAlreadyDeleted, -9},
		{ErrorCodeTimeout, -10},
		{ErrorCodeNoData, -11},
		{ErrorCodeIllegalOperation, -12},
		{ErrorCodeNotAllowedBySecurity, -13},
	}

	for _, tt := range tests {
		if int32(tt.code) != tt.expected {
			t.Errorf("ErrorCode value mismatch: got %d, want %d", tt.code, tt.expected)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		rc   native.ReturnCode
		want error
	}{
		{native.RetInconsistentPolicy, ErrInvalidQos},
		{native.RetOutOfResources, ErrResourceExhausted},
		{native.RetPreconditionNotMet, ErrPreconditionNotMet},
		{native.RetAlreadyDeleted, ErrAlreadyDestroyed},
		{native.RetTimeout, ErrTimeout},
		{native.RetBadParameter, ErrBadParameter},
		{native.RetIllegalOperation, ErrUnsupportedOperation},
		{native.RetError, ErrNativeRuntime},
	}

	for _, tt := range tests {
		err := retError(tt.rc, "op")
		if !errors.Is(err, tt.want) {
			t.Errorf("retError(%v) = %v, want kind of %v", tt.rc, err, tt.want)
		}
	}

	if retError(native.RetOK, "op") != nil {
		t.Error("retError(RetOK) should be nil")
	}
}
