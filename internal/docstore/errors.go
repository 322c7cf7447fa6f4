package docstore

import (
	"errors"
	"fmt"
)

// Code classifies a store failure.
type Code string

const (
	// CodePermissionDenied is returned when the access policy rejects an operation.
	CodePermissionDenied Code = "permission-denied"
	// CodeNotFound is returned when a field update targets a missing document.
	CodeNotFound Code = "not-found"
	// CodeInvalidArgument is returned for malformed paths, queries or writes.
	CodeInvalidArgument Code = "invalid-argument"
	// CodeUnavailable is returned when the store is closed or temporarily busy.
	CodeUnavailable Code = "unavailable"
	// CodeInternal is returned for unexpected storage failures.
	CodeInternal Code = "internal"
)

// Error is a coded store failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err carries the given store code.
func IsCode(err error, code Code) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}

// AsError extracts a coded store error, wrapping anything else as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
