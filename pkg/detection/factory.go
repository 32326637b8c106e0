package detection

import (
	"log/slog"
	"net/http"
)

// New builds the detector selected by cfg.Backend.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return NewVision(cfg, httpClient, logger)
	default:
		return NewYOLO(cfg, logger)
	}
}
