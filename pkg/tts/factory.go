package tts

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Backend names a provider.
type Backend string

const (
	BackendOpenAI     Backend = "openai"
	BackendElevenLabs Backend = "elevenlabs"
	BackendMock       Backend = "mock"
	BackendNone       Backend = "none"
)

// Settings is the file-configurable selection of providers.
type Settings struct {
	Backend  Backend       `yaml:"backend" json:"backend"`
	Fallback Backend       `yaml:"fallback" json:"fallback"` // optional second provider
	Voice    string        `yaml:"voice" json:"voice"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`

	OpenAIKey     string `yaml:"-" json:"-"`
	ElevenLabsKey string `yaml:"-" json:"-"`
}

// DefaultSettings selects OpenAI with no fallback.
func DefaultSettings() Settings {
	return Settings{
		Backend: BackendOpenAI,
		Timeout: 15 * time.Second,
	}
}

// Validate checks the backend names.
func (s *Settings) Validate() error {
	for _, b := range []Backend{s.Backend, s.Fallback} {
		switch b {
		case "", BackendOpenAI, BackendElevenLabs, BackendMock, BackendNone:
		default:
			return fmt.Errorf("tts: unknown backend %q", b)
		}
	}
	if s.Backend == "" {
		return fmt.Errorf("tts: backend is required")
	}
	return nil
}

// New builds the provider described by s. It returns nil and no error for
// BackendNone, which leaves the narrator in visual-only mode.
func New(s Settings, client *http.Client, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	primary, err := build(s.Backend, s, client, logger)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, nil
	}
	if s.Fallback == "" || s.Fallback == BackendNone || s.Fallback == s.Backend {
		return primary, nil
	}

	fallback, err := build(s.Fallback, s, client, logger)
	if err != nil {
		logger.Warn("tts fallback unavailable", "backend", s.Fallback, "error", err)
		return primary, nil
	}
	chain, err := NewChain(logger, primary, fallback)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func build(b Backend, s Settings, client *http.Client, logger *slog.Logger) (Provider, error) {
	opts := []Option{WithLogger(logger), WithHTTPClient(client)}
	if s.Timeout > 0 {
		opts = append(opts, WithTimeout(s.Timeout))
	}
	if s.Model != "" && b == s.Backend {
		opts = append(opts, WithModel(s.Model))
	}

	switch b {
	case BackendOpenAI:
		if s.Voice != "" {
			opts = append(opts, WithVoice(s.Voice))
		}
		p, err := NewOpenAI(append(opts, WithAPIKey(s.OpenAIKey))...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendElevenLabs:
		voice := s.Voice
		if voice == "" {
			voice = "rachel"
		}
		p, err := NewElevenLabs(append(opts, WithAPIKey(s.ElevenLabsKey), WithVoice(voice))...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendMock:
		return NewMock(), nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("tts: unknown backend %q", b)
	}
}
