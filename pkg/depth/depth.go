// Package depth estimates how far away things are in a camera frame.
//
// An Estimator produces a per-pixel Map in meters for a whole frame; a Sampler
// answers point queries, reusing the Map for every detection in the same frame.
package depth

import (
	"context"
	"math"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

// Point is a position normalized to the frame: 0,0 is top-left, 1,1 bottom-right.
type Point struct {
	X, Y float64
}

// InFrame reports whether p lies inside the unit square.
func (p Point) InFrame() bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// Map is a dense depth map in meters, row-major.
type Map struct {
	Width, Height int
	Meters        []float32
}

// At samples the map at a normalized point. The point is rescaled
// proportionally into map resolution, so the map need not match the frame size.
func (m *Map) At(p Point) (float64, error) {
	if m == nil || m.Width <= 0 || m.Height <= 0 || len(m.Meters) < m.Width*m.Height {
		return 0, ErrUnavailable
	}
	if !p.InFrame() || math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return 0, ErrOutOfRange
	}

	x := int(math.Floor(p.X * float64(m.Width)))
	y := int(math.Floor(p.Y * float64(m.Height)))
	if x == m.Width {
		x--
	}
	if y == m.Height {
		y--
	}

	v := float64(m.Meters[y*m.Width+x])
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, ErrOutOfRange
	}
	return v, nil
}

// Estimator computes a depth map for a frame.
type Estimator interface {
	Estimate(ctx context.Context, f *frame.Frame) (*Map, error)
	Close() error
}

// Sampler answers point depth queries for a frame.
type Sampler interface {
	SampleDepth(ctx context.Context, f *frame.Frame, p Point) (float64, error)
}
