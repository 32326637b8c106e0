package detection

import "errors"

var (
	// ErrEmptyFrame is returned when the frame has no decodable image.
	ErrEmptyFrame = errors.New("detection: empty frame")

	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrModelLoad is returned when the model cannot be loaded.
	ErrModelLoad = errors.New("detection: model failed to load")

	// ErrEmptyResponse is returned when a vision model answers with nothing.
	ErrEmptyResponse = errors.New("detection: empty model response")
)
