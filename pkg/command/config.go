package command

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config configures the coordinator.
type Config struct {
	// Triggers maps a lower-case phrase to the command it starts.
	Triggers map[string]Command `yaml:"triggers" json:"triggers"`

	// FlowTimeout bounds a single flow run.
	FlowTimeout time.Duration `yaml:"flow_timeout" json:"flow_timeout"`

	// RestartInterval is the minimum spacing between recognizer restarts
	// once RestartBurst is used up.
	RestartInterval time.Duration `yaml:"restart_interval" json:"restart_interval"`
	RestartBurst    int           `yaml:"restart_burst" json:"restart_burst"`

	// StartListening turns voice commands on at startup.
	StartListening bool `yaml:"start_listening" json:"start_listening"`

	OnPhrase          string `yaml:"on_phrase" json:"on_phrase"`
	OffPhrase         string `yaml:"off_phrase" json:"off_phrase"`
	UnavailablePhrase string `yaml:"unavailable_phrase" json:"unavailable_phrase"`
}

// DefaultConfig returns the default trigger set.
func DefaultConfig() Config {
	return Config{
		Triggers:          map[string]Command{"location": Location},
		FlowTimeout:       15 * time.Second,
		RestartInterval:   2 * time.Second,
		RestartBurst:      3,
		StartListening:    true,
		OnPhrase:          "Voice commands on",
		OffPhrase:         "Voice commands off",
		UnavailablePhrase: "Voice commands are not available",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Triggers) == 0 {
		return errors.New("command: at least one trigger required")
	}
	for phrase := range c.Triggers {
		if strings.TrimSpace(phrase) == "" {
			return errors.New("command: empty trigger phrase")
		}
		if phrase != strings.ToLower(phrase) {
			return fmt.Errorf("command: trigger %q must be lower case", phrase)
		}
	}
	if c.FlowTimeout <= 0 {
		return errors.New("command: flow timeout must be positive")
	}
	if c.RestartInterval <= 0 || c.RestartBurst < 1 {
		return errors.New("command: restart limit must be positive")
	}
	return nil
}
