package depth

import "errors"

var (
	// ErrUnavailable is returned when no depth estimate exists for the frame.
	ErrUnavailable = errors.New("depth: unavailable")

	// ErrOutOfRange is returned when the point or the sampled value is unusable.
	ErrOutOfRange = errors.New("depth: sample out of range")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("depth: model file not found")
)
