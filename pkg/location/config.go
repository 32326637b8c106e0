package location

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// GeocoderBackend names a reverse geocoding service.
type GeocoderBackend string

const (
	GeocoderNominatim GeocoderBackend = "nominatim"
	GeocoderOpenCage  GeocoderBackend = "opencage"
	GeocoderGoogle    GeocoderBackend = "google"
	GeocoderNone      GeocoderBackend = "none"
)

// PositionBackend names a position source.
type PositionBackend string

const (
	PositionNMEA   PositionBackend = "nmea"
	PositionStatic PositionBackend = "static"
	PositionNone   PositionBackend = "none"
)

// Config configures the location flow.
type Config struct {
	Geocoder     GeocoderBackend `yaml:"geocoder" json:"geocoder"`
	NominatimURL string          `yaml:"nominatim_url" json:"nominatim_url"`
	Language     string          `yaml:"language" json:"language"`
	APIKey       string          `yaml:"-" json:"-"`

	Position PositionBackend `yaml:"position" json:"position"`
	NMEA     NMEAConfig      `yaml:"nmea" json:"nmea"`
	Static   StaticConfig    `yaml:"static" json:"static"`

	// Timeout bounds a whole read-back: waiting for a fix plus geocoding.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// ReuseRadius reuses the last address while the user has moved less
	// than this many meters.
	ReuseRadius float64 `yaml:"reuse_radius" json:"reuse_radius"`
}

// NMEAConfig configures the GPS reader.
type NMEAConfig struct {
	// Device is a serial device or file emitting NMEA 0183 sentences. The
	// line speed must already be set (stty, udev).
	Device string `yaml:"device" json:"device"`

	// MaxFixAge discards fixes older than this.
	MaxFixAge time.Duration `yaml:"max_fix_age" json:"max_fix_age"`
}

// StaticConfig is a fixed position.
type StaticConfig struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// DefaultConfig uses Nominatim and no position source.
func DefaultConfig() Config {
	return Config{
		Geocoder:     GeocoderNominatim,
		NominatimURL: "https://nominatim.openstreetmap.org",
		Language:     "en",
		Position:     PositionNone,
		NMEA: NMEAConfig{
			Device:    "/dev/ttyUSB0",
			MaxFixAge: 30 * time.Second,
		},
		Timeout:     10 * time.Second,
		ReuseRadius: 25,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Geocoder {
	case GeocoderNominatim:
		if c.NominatimURL == "" {
			return errors.New("location: nominatim url required")
		}
	case GeocoderOpenCage, GeocoderGoogle:
		if c.APIKey == "" {
			return fmt.Errorf("location: %s geocoder needs an API key", c.Geocoder)
		}
	case GeocoderNone:
	default:
		return fmt.Errorf("location: unknown geocoder %q", c.Geocoder)
	}

	switch c.Position {
	case PositionNMEA:
		if c.NMEA.Device == "" {
			return errors.New("location: nmea device required")
		}
		if c.NMEA.MaxFixAge <= 0 {
			return errors.New("location: max fix age must be positive")
		}
	case PositionStatic:
		if !validCoord(c.Static.Latitude, 90) || !validCoord(c.Static.Longitude, 180) {
			return errors.New("location: static position out of range")
		}
	case PositionNone:
	default:
		return fmt.Errorf("location: unknown position source %q", c.Position)
	}

	if c.Timeout <= 0 {
		return errors.New("location: timeout must be positive")
	}
	if c.ReuseRadius < 0 {
		return errors.New("location: reuse radius cannot be negative")
	}
	return nil
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}
