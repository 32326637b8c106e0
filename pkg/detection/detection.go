// Package detection provides object detection over camera frames.
package detection

import (
	"context"
	"sort"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

// Rect is a bounding box in frame pixel space.
type Rect struct {
	X, Y          float64 // Top-left corner
	Width, Height float64
}

// Center returns the center point of the box.
func (r Rect) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the box in square pixels.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Detection is one object found in a frame. Detections carry no identity
// across frames beyond their label.
type Detection struct {
	Label string
	BBox  Rect
	Score float64
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in the frame.
	Detect(ctx context.Context, f *frame.Frame) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// Labels returns the distinct labels in dets, sorted.
func Labels(dets []Detection) []string {
	seen := make(map[string]struct{}, len(dets))
	out := make([]string, 0, len(dets))
	for _, d := range dets {
		if _, ok := seen[d.Label]; ok {
			continue
		}
		seen[d.Label] = struct{}{}
		out = append(out, d.Label)
	}
	sort.Strings(out)
	return out
}

// FilterScore drops detections below min.
func FilterScore(dets []Detection, min float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Score >= min {
			out = append(out, d)
		}
	}
	return out
}
