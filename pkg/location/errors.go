package location

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Code classifies a location failure.
type Code string

const (
	CodePermissionDenied    Code = "permission-denied"
	CodePositionUnavailable Code = "position-unavailable"
	CodeTimeout             Code = "timeout"
	CodeUnknown             Code = "unknown"
	CodeNotFound            Code = "not-found"
	CodeFetchFailed         Code = "fetch-failed"
	CodeUnsupported         Code = "unsupported"
)

var messages = map[Code]string{
	CodePermissionDenied:    "User denied the request for Geolocation.",
	CodePositionUnavailable: "Location information is unavailable.",
	CodeTimeout:             "The request to get user location timed out.",
	CodeUnknown:             "An unknown error occurred.",
	CodeNotFound:            "Location not found",
	CodeFetchFailed:         "Error fetching location data",
	CodeUnsupported:         "Geolocation is not supported on this device.",
}

// Message returns the user-facing text for c.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CodeUnknown]
}

// Error is a coded location failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("location: %s", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the user-facing text.
func (e *Error) Message() string {
	return e.Code.Message()
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the code from err. Timeouts map to CodeTimeout;
// anything else uncoded is CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	if isTimeout(err) {
		return CodeTimeout
	}
	return CodeUnknown
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// MessageOf returns the user-facing text for err.
func MessageOf(err error) string {
	return CodeOf(err).Message()
}

// ErrNotFound is returned by geocoders when no address matches.
var ErrNotFound = newError(CodeNotFound, nil)
