// Package fx3err defines the structured error type shared across the
// acquisition pipeline: a stable error Code for programmatic
// handling, the failing Op for logs, and an optional wrapped cause.
//
// Adapted from the teacher's root errors.go, which pairs a UblkError
// high-level code with device/queue context and a syscall.Errno.
// There is no errno here — USB transfer failures surface as gousb's
// own error values — so wrapping uses github.com/pkg/errors (as the
// rest of the pack does for error-context wrapping) instead of a
// syscall-errno mapping table.
package fx3err

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable, comparable error category.
type Code string

const (
	CodeDeviceNotFound  Code = "device not found"
	CodeDeviceBusy      Code = "device busy"
	CodeInvalidParams   Code = "invalid parameters"
	CodePermissionDenied Code = "permission denied"
	CodeIOError         Code = "i/o error"
	CodeTimeout         Code = "timeout"
	CodeDeviceOffline   Code = "device offline"
	CodeBufferOverflow  Code = "buffer overflow"
	CodeInvalidState    Code = "invalid state transition"
	CodeFileExists      Code = "file exists"
	CodeDiskFull        Code = "disk full"
	CodeNotImplemented  Code = "not implemented"
)

// Error is the structured error type returned by every package in the
// acquisition pipeline.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("fx3stream: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("fx3stream: %s", msg)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison by Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error with no wrapped cause.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// Wrap attaches op and code to an existing error, preserving it as
// the unwrap target. If inner is already an *Error, it is re-tagged:
// Op and Code take the new values, while Msg and Inner are carried
// over from inner.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: code, Msg: fe.Msg, Inner: fe.Inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: errors.WithStack(inner)}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
