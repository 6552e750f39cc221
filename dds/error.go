package dds

import (
	"fmt"

	"github.com/ZettaScaleLabs/dds-go/internal/native"
)

// ErrorCode mirrors the return codes of the native runtime.
type ErrorCode int32

const (
	// ErrorCodeOK indicates the operation completed successfully
	ErrorCodeOK ErrorCode = ErrorCode(native.RetOK)

	// ErrorCodeError is an unspecified native failure
	ErrorCodeError ErrorCode = ErrorCode(native.RetError)

	// ErrorCodeUnsupported indicates the operation is not supported
	ErrorCodeUnsupported ErrorCode = ErrorCode(native.RetUnsupported)

	// ErrorCodeBadParameter indicates an illegal argument
	ErrorCodeBadParameter ErrorCode = ErrorCode(native.RetBadParameter)

	// ErrorCodePreconditionNotMet indicates the entity is not in a state allowing the operation
	ErrorCodePreconditionNotMet ErrorCode = ErrorCode(native.RetPreconditionNotMet)

	// ErrorCodeOutOfResources indicates the runtime could not allocate
	ErrorCodeOutOfResources ErrorCode = ErrorCode(native.RetOutOfResources)

	// ErrorCodeNotEnabled indicates the entity is not enabled
	ErrorCodeNotEnabled ErrorCode = ErrorCode(native.RetNotEnabled)

	// ErrorCodeImmutablePolicy indicates an attempt to change an immutable policy
	ErrorCodeImmutablePolicy ErrorCode = ErrorCode(native.RetImmutablePolicy)

	// ErrorCodeInconsistentPolicy indicates policies that contradict each other
	ErrorCodeInconsistentPolicy ErrorCode = ErrorCode(native.RetInconsistentPolicy)

	// ErrorCodeAlreadyDeleted indicates the entity no longer exists
	ErrorCodeAlreadyDeleted ErrorCode = ErrorCode(native.RetAlreadyDeleted)

	// ErrorCodeTimeout indicates a blocking operation ran out of time
	ErrorCodeTimeout ErrorCode = ErrorCode(native.RetTimeout)

	// ErrorCodeNoData indicates there was nothing to return
	ErrorCodeNoData ErrorCode = ErrorCode(native.RetNoData)

	// ErrorCodeIllegalOperation indicates the operation does not apply to the entity
	ErrorCodeIllegalOperation ErrorCode = ErrorCode(native.RetIllegalOperation)

	// ErrorCodeNotAllowedBySecurity indicates a security refusal
	ErrorCodeNotAllowedBySecurity ErrorCode = ErrorCode(native.RetNotAllowedBySecurity)
)

func (c ErrorCode) String() string { return native.ReturnCode(c).String() }

// ErrorKind classifies failures independently of the native code.
type ErrorKind int

const (
	KindNativeRuntimeError ErrorKind = iota
	KindInvalidQos
	KindResourceExhausted
	KindPreconditionNotMet
	KindAlreadyDestroyed
	KindTimeout
	KindBadParameter
	KindUnsupportedOperation
)

var errorKindNames = [...]string{
	KindNativeRuntimeError:   "native runtime error",
	KindInvalidQos:           "invalid qos",
	KindResourceExhausted:    "resource exhausted",
	KindPreconditionNotMet:   "precondition not met",
	KindAlreadyDestroyed:     "already destroyed",
	KindTimeout:              "timeout",
	KindBadParameter:         "bad parameter",
	KindUnsupportedOperation: "unsupported operation",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("error kind %d", int(k))
}

// kindOf maps a native return code to its error kind.
func kindOf(code ErrorCode) ErrorKind {
	switch code {
	case ErrorCodeInconsistentPolicy, ErrorCodeImmutablePolicy:
		return KindInvalidQos
	case ErrorCodeOutOfResources:
		return KindResourceExhausted
	case ErrorCodePreconditionNotMet:
		return KindPreconditionNotMet
	case ErrorCodeAlreadyDeleted:
		return KindAlreadyDestroyed
	case ErrorCodeTimeout:
		return KindTimeout
	case ErrorCodeBadParameter:
		return KindBadParameter
	case ErrorCodeUnsupported, ErrorCodeIllegalOperation:
		return KindUnsupportedOperation
	default:
		return KindNativeRuntimeError
	}
}

// DdsError is a structured error of the safety layer
type DdsError struct {
	kind ErrorKind
	code ErrorCode
	msg  string
}

// Error implements the error interface
func (e DdsError) Error() string {
	if e.code != ErrorCodeOK {
		return fmt.Sprintf("%s: %s (code: %d)", e.kind, e.msg, e.code)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Kind returns the error classification
func (e DdsError) Kind() ErrorKind {
	return e.kind
}

// Code returns the native return code, ErrorCodeOK for failures detected
// before reaching the runtime
func (e DdsError) Code() ErrorCode {
	return e.code
}

// Message returns the error message without kind and code
func (e DdsError) Message() string {
	return e.msg
}

// NewDdsError creates a DdsError classified from a native code
func NewDdsError(code ErrorCode, msg string) DdsError {
	return DdsError{kind: kindOf(code), code: code, msg: msg}
}

func newKindError(kind ErrorKind, msg string) DdsError {
	return DdsError{kind: kind, msg: msg}
}

// Is reports whether target matches this error by comparing error kinds.
// This enables errors.Is() support against the sentinels below.
// Uses direct type assertion (not errors.As) to avoid recursive chain walking.
func (e DdsError) Is(target error) bool {
	t, ok := target.(DdsError)
	if ok {
		return e.kind == t.kind
	}
	return false
}

// Sentinel errors, one per kind. Use errors.Is(err, dds.ErrTimeout).
var (
	ErrNativeRuntime        = newKindError(KindNativeRuntimeError, "native runtime failure")
	ErrInvalidQos           = newKindError(KindInvalidQos, "invalid qos")
	ErrResourceExhausted    = newKindError(KindResourceExhausted, "resource exhausted")
	ErrPreconditionNotMet   = newKindError(KindPreconditionNotMet, "precondition not met")
	ErrAlreadyDestroyed     = newKindError(KindAlreadyDestroyed, "entity already destroyed")
	ErrTimeout              = newKindError(KindTimeout, "timeout")
	ErrBadParameter         = newKindError(KindBadParameter, "bad parameter")
	ErrUnsupportedOperation = newKindError(KindUnsupportedOperation, "unsupported operation")
)

// retError converts a native return code into an error, nil for RetOK.
func retError(rc native.ReturnCode, format string, args ...any) error {
	if rc >= 0 {
		return nil
	}
	return NewDdsError(ErrorCode(rc), fmt.Sprintf(format, args...))
}
