package location

import (
	"log/slog"
	"net/http"
)

// NewGeocoder builds the geocoder named by cfg. GeocoderNone returns nil.
func NewGeocoder(cfg Config, client *http.Client, logger *slog.Logger) (Geocoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Geocoder {
	case GeocoderNominatim:
		return NewNominatim(cfg.NominatimURL, cfg.Language, client, logger), nil
	case GeocoderOpenCage:
		return NewOpenCage(cfg.APIKey), nil
	case GeocoderGoogle:
		return NewGoogle(cfg.APIKey), nil
	default:
		return nil, nil
	}
}

// NewPositionSource builds the position source named by cfg. An NMEA
// source must be started with Run. PositionNone returns an unset
// StaticSource so positions can still arrive from the dashboard.
func NewPositionSource(cfg Config, logger *slog.Logger) (PositionSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Position {
	case PositionNMEA:
		return NewNMEASource(cfg.NMEA, logger), nil
	case PositionStatic:
		return NewStaticSource(cfg.Static.Latitude, cfg.Static.Longitude), nil
	default:
		return &StaticSource{}, nil
	}
}
