package frame

import (
	"errors"
	"strings"
)

// Backend selects where frames come from.
type Backend string

const (
	// BackendCamera reads a local V4L2/AVFoundation device through OpenCV.
	BackendCamera Backend = "camera"
	// BackendWebRTC receives H264 from a remote camera over WebRTC.
	BackendWebRTC Backend = "webrtc"
	// BackendFile replays a still image. Used for demos and tests.
	BackendFile Backend = "file"
)

// Config holds frame source parameters.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	Width     int `yaml:"width" json:"width"`         // Requested capture width
	Height    int `yaml:"height" json:"height"`       // Requested capture height
	Framerate int `yaml:"framerate" json:"framerate"` // Target FPS
	Quality   int `yaml:"quality" json:"quality"`     // JPEG quality 1-100

	// Device indexes for each facing mode (camera backend).
	UserDevice        int `yaml:"user_device" json:"user_device"`
	EnvironmentDevice int `yaml:"environment_device" json:"environment_device"`

	// SignallingURL is the GStreamer signalling server (webrtc backend).
	SignallingURL string `yaml:"signalling_url" json:"signalling_url"`
	// Producers maps facing mode to the producer name announced by the signaller.
	UserProducer        string `yaml:"user_producer" json:"user_producer"`
	EnvironmentProducer string `yaml:"environment_producer" json:"environment_producer"`

	// ImagePath is the still image replayed by the file backend.
	ImagePath string `yaml:"image_path" json:"image_path"`
}

// DefaultConfig returns a 640x480 local camera at 15 FPS.
func DefaultConfig() Config {
	return Config{
		Backend:             BackendCamera,
		Width:               640,
		Height:              480,
		Framerate:           15,
		Quality:             80,
		UserDevice:          1,
		EnvironmentDevice:   0,
		UserProducer:        "front",
		EnvironmentProducer: "back",
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errs []string

	switch c.Backend {
	case BackendCamera, BackendFile:
	case BackendWebRTC:
		if c.SignallingURL == "" {
			errs = append(errs, "signalling_url is required for the webrtc backend")
		}
	default:
		errs = append(errs, "backend must be camera, webrtc, or file")
	}
	if c.Backend == BackendFile && c.ImagePath == "" {
		errs = append(errs, "image_path is required for the file backend")
	}

	if c.Width < 160 || c.Width > 4096 {
		errs = append(errs, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 4096 {
		errs = append(errs, "height must be between 120 and 4096")
	}
	if c.Framerate < 1 || c.Framerate > 60 {
		errs = append(errs, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, "quality must be between 1 and 100")
	}
	if c.UserDevice < 0 || c.EnvironmentDevice < 0 {
		errs = append(errs, "device indexes must not be negative")
	}

	return errs
}

// Err folds Validate's messages into a single error.
func (c *Config) Err() error {
	if errs := c.Validate(); len(errs) > 0 {
		return errors.New("frame: invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Device returns the device index for a facing mode.
func (c *Config) Device(f Facing) int {
	if f == FacingUser {
		return c.UserDevice
	}
	return c.EnvironmentDevice
}

// Producer returns the signalling producer name for a facing mode.
func (c *Config) Producer(f Facing) string {
	if f == FacingUser {
		return c.UserProducer
	}
	return c.EnvironmentProducer
}
