package frame

import (
	"log/slog"

	"github.com/benbjohnson/clock"
)

// NewOpener returns the Opener for cfg.Backend.
func NewOpener(cfg Config, clk clock.Clock, logger *slog.Logger) (Opener, error) {
	if err := cfg.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case BackendWebRTC:
		return RemoteOpener(cfg, logger), nil
	case BackendFile:
		return StillOpener(cfg, clk), nil
	default:
		return CameraOpener(cfg, logger), nil
	}
}
