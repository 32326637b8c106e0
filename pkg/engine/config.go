package engine

import (
	"errors"
	"time"

	"github.com/teslashibe/go-narrator/pkg/gesture"
)

// Config holds the engine's loop settings.
type Config struct {
	// CameraRetry is the wait before reopening a camera that failed.
	CameraRetry time.Duration `yaml:"camera_retry" json:"camera_retry"`

	// DetectTimeout bounds detection plus depth for one frame.
	DetectTimeout time.Duration `yaml:"detect_timeout" json:"detect_timeout"`

	// CameraUnavailablePhrase is spoken once per camera outage.
	CameraUnavailablePhrase string `yaml:"camera_unavailable_phrase" json:"camera_unavailable_phrase"`

	// SpeechEnabled is the initial state of ambient narration.
	SpeechEnabled bool `yaml:"speech_enabled" json:"speech_enabled"`

	Gesture gesture.Config `yaml:"gesture" json:"gesture"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		CameraRetry:             5 * time.Second,
		DetectTimeout:           10 * time.Second,
		CameraUnavailablePhrase: "Camera is not available",
		SpeechEnabled:           true,
		Gesture:                 gesture.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.CameraRetry <= 0 {
		return errors.New("engine: camera_retry must be positive")
	}
	if c.DetectTimeout <= 0 {
		return errors.New("engine: detect_timeout must be positive")
	}
	return c.Gesture.Validate()
}
