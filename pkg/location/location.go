// Package location reads back the user's current address.
//
// A PositionSource yields coordinates, a Geocoder turns them into an
// address, and Service.Run produces the sentence to speak. Every failure is
// a coded *Error whose Message is also spoken.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	geo "github.com/kellydunn/golang-geo"
)

// Place is a reverse-geocoded address.
type Place struct {
	Address string `json:"address"`
	Region  string `json:"region,omitempty"`
}

// Text is the spoken read-back.
func (p Place) Text() string {
	if p.Region == "" {
		return fmt.Sprintf("You are in %s.", p.Address)
	}
	return fmt.Sprintf("You are in %s. State: %s.", p.Address, p.Region)
}

// Geocoder resolves coordinates to a Place. It returns ErrNotFound when
// nothing matches.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error)
}

// PositionSource yields the current position.
type PositionSource interface {
	Position(ctx context.Context) (*geo.Point, error)
}

// Reading is the outcome of one lookup.
type Reading struct {
	Point  *geo.Point `json:"-"`
	Lat    float64    `json:"lat"`
	Lon    float64    `json:"lon"`
	Place  Place      `json:"place"`
	Cached bool       `json:"cached"`
	At     time.Time  `json:"at"`
}

// Service runs the location read-back.
type Service struct {
	cfg       Config
	positions PositionSource
	geocoder  Geocoder
	logger    *slog.Logger
	clock     clock.Clock

	mu   sync.Mutex
	last *Reading
}

// NewService creates a service. A nil positions or geocoder makes every
// lookup fail with CodeUnsupported.
func NewService(cfg Config, positions PositionSource, geocoder Geocoder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		positions: positions,
		geocoder:  geocoder,
		logger:    logger.With("component", "location.service"),
		clock:     clock.New(),
	}
}

// SetClock replaces the clock; used by tests.
func (s *Service) SetClock(clk clock.Clock) {
	s.clock = clk
}

// Locate fetches the position and its address. The previous address is
// reused while the user stays within ReuseRadius of it.
func (s *Service) Locate(ctx context.Context) (*Reading, error) {
	if s.positions == nil || s.geocoder == nil {
		return nil, newError(CodeUnsupported, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	p, err := s.positions.Position(ctx)
	if err != nil {
		return nil, classify(err, CodePositionUnavailable)
	}

	if cached := s.reuse(p); cached != nil {
		s.logger.Debug("reusing address", "address", cached.Place.Address)
		return cached, nil
	}

	place, err := s.geocoder.ReverseGeocode(ctx, p.Lat(), p.Lng())
	if err != nil {
		return nil, classify(err, CodeFetchFailed)
	}
	if place.Address == "" {
		return nil, ErrNotFound
	}

	r := &Reading{Point: p, Lat: p.Lat(), Lon: p.Lng(), Place: place, At: s.clock.Now()}
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()

	s.logger.Info("located", "address", place.Address, "region", place.Region)
	return r, nil
}

func (s *Service) reuse(p *geo.Point) *Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.cfg.ReuseRadius <= 0 {
		return nil
	}
	meters := s.last.Point.GreatCircleDistance(p) * 1000
	if meters >= s.cfg.ReuseRadius {
		return nil
	}
	r := *s.last
	r.Cached = true
	return &r
}

// Last returns the most recent successful reading, or nil.
func (s *Service) Last() *Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Run returns the sentence to speak. On failure it returns the coded
// message along with the error.
func (s *Service) Run(ctx context.Context) (string, error) {
	r, err := s.Locate(ctx)
	if err != nil {
		s.logger.Warn("location failed", "code", CodeOf(err), "error", err)
		return MessageOf(err), err
	}
	return r.Place.Text(), nil
}

// classify keeps coded errors, maps timeouts to CodeTimeout and wraps the
// rest in fallback.
func classify(err error, fallback Code) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if isTimeout(err) {
		return newError(CodeTimeout, err)
	}
	return newError(fallback, err)
}
