package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"
	geo "github.com/kellydunn/golang-geo"
)

// NMEASource tracks the latest fix from an NMEA 0183 stream (GLL, RMC and
// GGA sentences).
type NMEASource struct {
	cfg    NMEAConfig
	logger *slog.Logger
	clock  clock.Clock

	mu      sync.Mutex
	fix     *geo.Point
	fixAt   time.Time
	heard   bool
	readErr error
	updated chan struct{}
}

// NewNMEASource creates a source. Call Run to start reading cfg.Device.
func NewNMEASource(cfg NMEAConfig, logger *slog.Logger) *NMEASource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NMEASource{
		cfg:     cfg,
		logger:  logger.With("component", "location.nmea"),
		clock:   clock.New(),
		updated: make(chan struct{}),
	}
}

// SetClock replaces the clock; used by tests.
func (n *NMEASource) SetClock(clk clock.Clock) {
	n.clock = clk
}

// Run opens the device and reads until ctx ends or the device fails.
func (n *NMEASource) Run(ctx context.Context) error {
	f, err := os.Open(n.cfg.Device)
	if err != nil {
		err = fmt.Errorf("location: open %s: %w", n.cfg.Device, err)
		n.fail(err)
		return err
	}
	go func() {
		<-ctx.Done()
		f.Close()
	}()
	n.logger.Info("reading gps", "device", n.cfg.Device)
	return n.ReadFrom(ctx, f)
}

// ReadFrom consumes sentences from r until EOF or ctx ends.
func (n *NMEASource) ReadFrom(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := n.Update(sc.Text()); err != nil {
			n.logger.Debug("can't parse nmea", "line", sc.Text(), "error", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	n.fail(err)
	return err
}

func (n *NMEASource) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readErr = err
	n.broadcastLocked()
}

// Update applies one sentence. Sentences other than GLL, RMC and GGA are
// ignored.
func (n *NMEASource) Update(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	s, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	var (
		lat, lon float64
		valid    bool
	)
	switch m := s.(type) {
	case nmea.GLL:
		lat, lon, valid = m.Latitude, m.Longitude, m.Validity == nmea.ValidGLL
	case nmea.RMC:
		lat, lon, valid = m.Latitude, m.Longitude, m.Validity == nmea.ValidRMC
	case nmea.GGA:
		lat, lon, valid = m.Latitude, m.Longitude, m.FixQuality != nmea.Invalid
	default:
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.heard = true
	if !valid {
		return nil
	}
	n.fix = geo.NewPoint(lat, lon)
	n.fixAt = n.clock.Now()
	n.broadcastLocked()
	return nil
}

func (n *NMEASource) broadcastLocked() {
	close(n.updated)
	n.updated = make(chan struct{})
}

// Position returns the latest fix, waiting for one until ctx ends.
func (n *NMEASource) Position(ctx context.Context) (*geo.Point, error) {
	for {
		n.mu.Lock()
		if n.fix != nil && n.clock.Since(n.fixAt) <= n.cfg.MaxFixAge {
			p := geo.NewPoint(n.fix.Lat(), n.fix.Lng())
			n.mu.Unlock()
			return p, nil
		}
		if n.readErr != nil {
			err := n.readErr
			n.mu.Unlock()
			return nil, newError(CodePositionUnavailable, err)
		}
		heard, wait := n.heard, n.updated
		n.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			if heard {
				return nil, newError(CodePositionUnavailable, errors.New("no valid fix"))
			}
			return nil, newError(CodeTimeout, ctx.Err())
		}
	}
}

var _ PositionSource = (*NMEASource)(nil)
