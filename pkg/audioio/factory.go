package audioio

import (
	"fmt"
	"log/slog"
)

// NewSink creates the sink selected by cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio sink", "backend", cfg.Backend, "sample_rate", cfg.SampleRate, "device", cfg.PlaybackDevice)

	switch cfg.Backend {
	case BackendExec:
		return NewExecSink(cfg, logger), nil
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}

// NewSource creates the source selected by cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating audio source", "backend", cfg.Backend, "sample_rate", cfg.SampleRate, "device", cfg.CaptureDevice)

	switch cfg.Backend {
	case BackendExec:
		return NewExecSource(cfg, logger), nil
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unsupported backend %q", cfg.Backend)
	}
}
