// Package audioio plays synthesized speech and captures microphone audio.
//
// Two backends exist:
//   - exec: pipes raw PCM through ALSA's aplay/arecord
//   - mock: in-memory, for tests and machines without audio hardware
package audioio

import (
	"fmt"
	"time"
)

// Backend names an audio implementation.
type Backend string

const (
	BackendExec Backend = "exec"
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate in Hz for both directions. Audio written at another rate is
	// resampled.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`
	Channels   int `yaml:"channels" json:"channels"`

	// BufferDuration is the capture chunk size.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// PlaybackDevice and CaptureDevice are ALSA device names ("default", "plughw:1,0").
	// Empty uses the system default.
	PlaybackDevice string `yaml:"playback_device" json:"playback_device"`
	CaptureDevice  string `yaml:"capture_device" json:"capture_device"`

	PlayCommand   string `yaml:"play_command" json:"play_command"`
	RecordCommand string `yaml:"record_command" json:"record_command"`
}

// DefaultConfig returns 24kHz mono through aplay/arecord.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendExec,
		SampleRate:     24000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		PlayCommand:    "aplay",
		RecordCommand:  "arecord",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendExec, BackendMock:
	default:
		return fmt.Errorf("audioio: unknown backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("audioio: buffer_duration must be positive, got %v", c.BufferDuration)
	}
	if c.Backend == BackendExec && (c.PlayCommand == "" || c.RecordCommand == "") {
		return fmt.Errorf("audioio: exec backend needs play_command and record_command")
	}
	return nil
}

// BufferSize returns samples per capture chunk, per channel.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns bytes per capture chunk.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

// alsaArgs returns the raw S16_LE arguments shared by aplay and arecord.
func (c *Config) alsaArgs(device string) []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE",
		"-r", fmt.Sprint(c.SampleRate), "-c", fmt.Sprint(c.Channels)}
	if device != "" {
		args = append(args, "-D", device)
	}
	return args
}
