package fx3stream

import "github.com/fx3dev/fx3stream/internal/fx3err"

// Error is the structured error type returned across the public API:
// a stable Code, the failing Op, and an optional wrapped cause. See
// internal/fx3err for the implementation shared by every component.
type Error = fx3err.Error

// Code enumerates the error kinds named in spec.md §7.
type Code = fx3err.Code

// Error codes, re-exported for callers that want to compare against
// a returned *Error's Code without importing internal/fx3err.
const (
	CodeDeviceNotFound   = fx3err.CodeDeviceNotFound
	CodeDeviceBusy       = fx3err.CodeDeviceBusy
	CodeInvalidParams    = fx3err.CodeInvalidParams
	CodePermissionDenied = fx3err.CodePermissionDenied
	CodeIOError          = fx3err.CodeIOError
	CodeTimeout          = fx3err.CodeTimeout
	CodeDeviceOffline    = fx3err.CodeDeviceOffline
	CodeBufferOverflow   = fx3err.CodeBufferOverflow
	CodeInvalidState     = fx3err.CodeInvalidState
	CodeFileExists       = fx3err.CodeFileExists
	CodeDiskFull         = fx3err.CodeDiskFull
	CodeNotImplemented   = fx3err.CodeNotImplemented
)

// NewError constructs a structured error.
func NewError(op string, code Code, msg string) *Error {
	return fx3err.New(op, code, msg)
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code Code) bool {
	return fx3err.Is(err, code)
}
