package location

import (
	"context"
	"sync"

	geo "github.com/kellydunn/golang-geo"
)

// StaticSource reports a configured position. Set replaces it, which lets
// the dashboard forward the phone's own geolocation.
type StaticSource struct {
	mu       sync.Mutex
	lat, lon float64
	set      bool
}

// NewStaticSource creates a source at lat, lon.
func NewStaticSource(lat, lon float64) *StaticSource {
	return &StaticSource{lat: lat, lon: lon, set: true}
}

// Set moves the position.
func (s *StaticSource) Set(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lat, s.lon, s.set = lat, lon, true
}

func (s *StaticSource) Position(ctx context.Context) (*geo.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, newError(CodePositionUnavailable, nil)
	}
	return geo.NewPoint(s.lat, s.lon), nil
}

var _ PositionSource = (*StaticSource)(nil)
