package novelty

import (
	"fmt"
	"time"
)

// Config holds the tracker's timing windows.
type Config struct {
	// DebounceWindow is the minimum gap between two announcements of a label
	// that stays in view while the scene around it changes.
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`

	// ReconfirmWindow replaces DebounceWindow when the frame's label set is
	// identical to the previous frame's: an unchanged scene is re-read slowly.
	ReconfirmWindow time.Duration `yaml:"reconfirm_window" json:"reconfirm_window"`

	// SilenceWindow is how long frames must be empty before the
	// nothing-detected notice, and the minimum gap between two such notices.
	SilenceWindow time.Duration `yaml:"silence_window" json:"silence_window"`

	// GraceWindow keeps a label's state for this long after it leaves the
	// frame. Zero forgets labels as soon as they are absent.
	GraceWindow time.Duration `yaml:"grace_window" json:"grace_window"`
}

// DefaultConfig returns the standard windows: 5s debounce, 40s reconfirm,
// 8s silence and no grace.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:  5 * time.Second,
		ReconfirmWindow: 40 * time.Second,
		SilenceWindow:   8 * time.Second,
		GraceWindow:     0,
	}
}

// Validate checks that windows are non-negative and ordered.
func (c *Config) Validate() error {
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("novelty: debounce_window must be positive, got %v", c.DebounceWindow)
	}
	if c.ReconfirmWindow < c.DebounceWindow {
		return fmt.Errorf("novelty: reconfirm_window (%v) must not be shorter than debounce_window (%v)",
			c.ReconfirmWindow, c.DebounceWindow)
	}
	if c.SilenceWindow <= 0 {
		return fmt.Errorf("novelty: silence_window must be positive, got %v", c.SilenceWindow)
	}
	if c.GraceWindow < 0 {
		return fmt.Errorf("novelty: grace_window must not be negative, got %v", c.GraceWindow)
	}
	return nil
}
