// Package frame provides the camera frames the narrator analyses and the
// sources that produce them.
package frame

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Frame is one captured image, JPEG encoded.
type Frame struct {
	// Seq increases by one per frame within a source.
	Seq uint64

	// Generation identifies the camera source that produced the frame.
	// It changes every time the camera is flipped.
	Generation uint64

	JPEG   []byte
	Width  int
	Height int

	CapturedAt time.Time
}

// Valid reports whether the frame carries an image with usable dimensions.
func (f *Frame) Valid() bool {
	return f != nil && len(f.JPEG) > 0 && f.Width > 0 && f.Height > 0
}

// Facing is the camera facing mode.
type Facing string

const (
	// FacingUser is the front (selfie) camera.
	FacingUser Facing = "user"
	// FacingEnvironment is the rear camera. It is the default.
	FacingEnvironment Facing = "environment"
)

// ParseFacing parses a stored facing mode. Empty input yields the default.
func ParseFacing(s string) (Facing, error) {
	switch Facing(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return FacingEnvironment, nil
	case FacingUser:
		return FacingUser, nil
	case FacingEnvironment:
		return FacingEnvironment, nil
	default:
		return FacingEnvironment, fmt.Errorf("frame: unknown facing mode %q", s)
	}
}

// Flip returns the opposite facing mode.
func (f Facing) Flip() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Source yields successive frames on demand.
type Source interface {
	// Next blocks until the next frame is available.
	Next(ctx context.Context) (*Frame, error)

	// Close releases the device. Pending Next calls return an error.
	Close() error
}

// Opener opens a source for the given facing mode.
type Opener func(ctx context.Context, facing Facing) (Source, error)
