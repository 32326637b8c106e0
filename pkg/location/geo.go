package location

import (
	"context"
	"fmt"
	"strings"

	geo "github.com/kellydunn/golang-geo"
)

// GeoGeocoder adapts a golang-geo geocoder (Google, OpenCage, MapQuest).
// Those return a single formatted address, so Place.Region stays empty.
type GeoGeocoder struct {
	name string
	g    geo.Geocoder
}

// NewGeoGeocoder wraps g.
func NewGeoGeocoder(name string, g geo.Geocoder) *GeoGeocoder {
	return &GeoGeocoder{name: name, g: g}
}

// NewOpenCage creates an OpenCage geocoder with key.
func NewOpenCage(key string) *GeoGeocoder {
	geo.SetOpenCageAPIKey(key)
	return NewGeoGeocoder(string(GeocoderOpenCage), &geo.OpenCageGeocoder{})
}

// NewGoogle creates a Google Maps geocoder with key.
func NewGoogle(key string) *GeoGeocoder {
	geo.SetGoogleAPIKey(key)
	return NewGeoGeocoder(string(GeocoderGoogle), &geo.GoogleGeocoder{})
}

type geoResult struct {
	addr string
	err  error
}

// ReverseGeocode implements Geocoder. The underlying call has no context,
// so it is abandoned when ctx ends.
func (g *GeoGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error) {
	done := make(chan geoResult, 1)
	go func() {
		addr, err := g.g.ReverseGeocode(geo.NewPoint(lat, lon))
		done <- geoResult{addr, err}
	}()

	select {
	case <-ctx.Done():
		return Place{}, newError(CodeTimeout, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if strings.Contains(r.err.Error(), "ZERO_RESULTS") {
				return Place{}, ErrNotFound
			}
			return Place{}, newError(CodeFetchFailed, fmt.Errorf("%s: %w", g.name, r.err))
		}
		addr := strings.TrimSpace(r.addr)
		if addr == "" {
			return Place{}, ErrNotFound
		}
		return Place{Address: addr}, nil
	}
}

var _ Geocoder = (*GeoGeocoder)(nil)
