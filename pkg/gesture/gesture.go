// Package gesture recognises tap sequences from the dashboard.
package gesture

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config configures the tap detector.
type Config struct {
	// Window is the quiet time after the last tap that ends a sequence.
	Window time.Duration `yaml:"window" json:"window"`

	// Taps is the exact sequence length that fires.
	Taps int `yaml:"taps" json:"taps"`
}

// DefaultConfig detects a double tap within 300 ms.
func DefaultConfig() Config {
	return Config{Window: 300 * time.Millisecond, Taps: 2}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return errors.New("gesture: window must be positive")
	}
	if c.Taps < 1 {
		return errors.New("gesture: taps must be at least 1")
	}
	return nil
}

// Detector counts taps until Window passes without one, then fires if the
// count equals Taps exactly. A triple tap is not a double tap.
type Detector struct {
	cfg    Config
	clock  clock.Clock
	fire   func()
	logger *slog.Logger

	mu    sync.Mutex
	count int
	gen   uint64
	timer *clock.Timer
}

// New creates a detector calling fire on its own goroutine.
func New(cfg Config, clk clock.Clock, fire func(), logger *slog.Logger) *Detector {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:    cfg,
		clock:  clk,
		fire:   fire,
		logger: logger.With("component", "gesture.detector"),
	}
}

// Tap records one tap.
func (d *Detector) Tap() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.cfg.Window, func() { d.settle(gen) })
}

func (d *Detector) settle(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	n := d.count
	d.count = 0
	d.timer = nil
	d.mu.Unlock()

	if n != d.cfg.Taps {
		d.logger.Debug("tap sequence ignored", "taps", n)
		return
	}
	d.logger.Debug("gesture", "taps", n)
	if d.fire != nil {
		d.fire()
	}
}

// Pending returns the taps counted in the open sequence.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
