package detection

import (
	"fmt"
	"time"
)

// Backend selects the detector implementation.
type Backend string

const (
	BackendYOLO   Backend = "yolo"   // YOLOv8 ONNX through OpenCV DNN
	BackendOllama Backend = "ollama" // Vision LLM served by Ollama
)

// Config holds detector configuration.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// YOLO
	ModelPath        string  `yaml:"model_path" json:"model_path"`
	ConfidenceThresh float64 `yaml:"confidence" json:"confidence"`
	NMSThresh        float64 `yaml:"nms" json:"nms"`
	InputWidth       int     `yaml:"input_width" json:"input_width"`
	InputHeight      int     `yaml:"input_height" json:"input_height"`

	// Ollama
	OllamaURL    string        `yaml:"ollama_url" json:"ollama_url"`
	OllamaModel  string        `yaml:"ollama_model" json:"ollama_model"`
	MaxDimension int           `yaml:"max_dimension" json:"max_dimension"` // Longest side sent to the model
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns production defaults for YOLOv8n.
func DefaultConfig() Config {
	return Config{
		Backend:          BackendYOLO,
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		OllamaURL:        "http://localhost:11434",
		OllamaModel:      "llava",
		MaxDimension:     512,
		Timeout:          20 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendYOLO:
		if c.ModelPath == "" {
			return fmt.Errorf("detection: model_path is required for %s", c.Backend)
		}
		if c.InputWidth <= 0 || c.InputHeight <= 0 {
			return fmt.Errorf("detection: input size must be positive, got %dx%d", c.InputWidth, c.InputHeight)
		}
	case BackendOllama:
		if c.OllamaURL == "" || c.OllamaModel == "" {
			return fmt.Errorf("detection: ollama_url and ollama_model are required for %s", c.Backend)
		}
	default:
		return fmt.Errorf("detection: unknown backend %q", c.Backend)
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("detection: confidence must be in [0,1], got %v", c.ConfidenceThresh)
	}
	return nil
}
