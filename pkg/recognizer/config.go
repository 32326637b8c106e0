package recognizer

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config configures the recognizer.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// URL of a Vosk-compatible websocket server.
	URL string `yaml:"url" json:"url"`

	// SampleRate sent to the server. Captured audio is resampled to it.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// FinalTimeout bounds the wait for the last transcript after end of
	// audio.
	FinalTimeout time.Duration `yaml:"final_timeout" json:"final_timeout"`

	// MaxSession ends a session after this long. 0 means no limit.
	MaxSession time.Duration `yaml:"max_session" json:"max_session"`
}

// DefaultConfig returns settings for a local vosk-server.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendVosk,
		URL:              "ws://localhost:2700",
		SampleRate:       16000,
		HandshakeTimeout: 10 * time.Second,
		FinalTimeout:     2 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendVosk:
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("recognizer: invalid url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("recognizer: url scheme must be ws or wss, got %q", u.Scheme)
		}
	case BackendMock, BackendNone:
	default:
		return fmt.Errorf("recognizer: unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return errors.New("recognizer: sample rate must be positive")
	}
	if c.HandshakeTimeout <= 0 || c.FinalTimeout <= 0 {
		return errors.New("recognizer: timeouts must be positive")
	}
	if c.MaxSession < 0 {
		return errors.New("recognizer: max session cannot be negative")
	}
	return nil
}
