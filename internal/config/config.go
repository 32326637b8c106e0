// Package config loads the narrator's configuration.
//
// Settings come from an optional YAML file and are then overridden by
// environment variables. API keys are only read from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-narrator/pkg/audioio"
	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/depth"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/engine"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/location"
	"github.com/teslashibe/go-narrator/pkg/novelty"
	"github.com/teslashibe/go-narrator/pkg/proximity"
	"github.com/teslashibe/go-narrator/pkg/recognizer"
	"github.com/teslashibe/go-narrator/pkg/tts"
	"github.com/teslashibe/go-narrator/pkg/web"
)

// Environment variables read by FromEnv and ApplyEnv.
const (
	EnvConfigPath    = "NARRATOR_CONFIG"
	EnvLogLevel      = "LOG_LEVEL"
	EnvPort          = "PORT"
	EnvOllamaHost    = "OLLAMA_HOST"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvGeocoderKey   = "GEOCODER_API_KEY"
)

// DefaultPreferencesPath is where the camera preference is kept.
const DefaultPreferencesPath = "narrator-preferences.json"

// Config is the complete narrator configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// PreferencesPath is the JSON file holding user preferences. Empty
	// keeps them in memory only.
	PreferencesPath string `yaml:"preferences_path"`

	Frame      frame.Config      `yaml:"frame"`
	Detection  detection.Config  `yaml:"detection"`
	Depth      depth.Config      `yaml:"depth"`
	Novelty    novelty.Config    `yaml:"novelty"`
	Proximity  proximity.Config  `yaml:"proximity"`
	TTS        tts.Settings      `yaml:"tts"`
	Audio      audioio.Config    `yaml:"audio"`
	Recognizer recognizer.Config `yaml:"recognizer"`
	Command    command.Config    `yaml:"command"`
	Location   location.Config   `yaml:"location"`
	Engine     engine.Config     `yaml:"engine"`
	Web        web.Config        `yaml:"web"`
}

// Default returns every package's defaults.
func Default() Config {
	return Config{
		LogLevel:        "info",
		PreferencesPath: DefaultPreferencesPath,
		Frame:           frame.DefaultConfig(),
		Detection:       detection.DefaultConfig(),
		Depth:           depth.DefaultConfig(),
		Novelty:         novelty.DefaultConfig(),
		Proximity:       proximity.DefaultConfig(),
		TTS:             tts.DefaultSettings(),
		Audio:           audioio.DefaultConfig(),
		Recognizer:      recognizer.DefaultConfig(),
		Command:         command.DefaultConfig(),
		Location:        location.DefaultConfig(),
		Engine:          engine.DefaultConfig(),
		Web:             web.DefaultConfig(),
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value; unknown keys are an error. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	if err := Decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r into cfg. An empty document leaves cfg as is.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// FromEnv loads the file named by NARRATOR_CONFIG, or explicitPath when it
// is set, then applies environment overrides.
func FromEnv(explicitPath string) (Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides cfg from getenv. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvPort); v != "" {
		c.Web.Port = v
	}
	if v := getenv(EnvOllamaHost); v != "" {
		c.Detection.OllamaURL = ollamaURL(v)
	}
	if v := getenv(EnvOpenAIKey); v != "" {
		c.TTS.OpenAIKey = v
	}
	if v := getenv(EnvElevenLabsKey); v != "" {
		c.TTS.ElevenLabsKey = v
	}
	if v := getenv(EnvGeocoderKey); v != "" {
		c.Location.APIKey = v
	}
}

// ollamaURL accepts OLLAMA_HOST in the forms the ollama CLI does:
// "host:port" or a full URL.
func ollamaURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "http://" + host
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := c.Frame.Err()
	errs = multierr.Append(errs, c.Detection.Validate())
	errs = multierr.Append(errs, c.Depth.Validate())
	errs = multierr.Append(errs, c.Novelty.Validate())
	errs = multierr.Append(errs, c.Proximity.Validate())
	errs = multierr.Append(errs, c.TTS.Validate())
	errs = multierr.Append(errs, c.Audio.Validate())
	errs = multierr.Append(errs, c.Recognizer.Validate())
	errs = multierr.Append(errs, c.Command.Validate())
	errs = multierr.Append(errs, c.Location.Validate())
	errs = multierr.Append(errs, c.Engine.Validate())
	errs = multierr.Append(errs, c.Web.Validate())
	return errs
}
