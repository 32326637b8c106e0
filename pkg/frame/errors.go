package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Next after the source has been closed.
	ErrClosed = errors.New("frame: source closed")

	// ErrNoSource is returned when no source has been opened yet.
	ErrNoSource = errors.New("frame: no source open")

	// ErrSwitching is returned by Open while a Flip is opening the other camera.
	ErrSwitching = errors.New("frame: camera switch in progress")

	// ErrEmptyFrame is returned when the device delivered an empty image.
	ErrEmptyFrame = errors.New("frame: empty frame")
)

// AcquireError reports a failure to open a camera for a facing mode.
type AcquireError struct {
	Facing Facing
	Err    error
}

// Error implements the error interface.
func (e *AcquireError) Error() string {
	return fmt.Sprintf("frame: acquire %s camera: %v", e.Facing, e.Err)
}

// Unwrap returns the underlying error.
func (e *AcquireError) Unwrap() error {
	return e.Err
}
