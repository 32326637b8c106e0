package depth

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

// Config holds depth estimator configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	ModelPath string `yaml:"model_path" json:"model_path"`
	InputSize int    `yaml:"input_size" json:"input_size"`

	// Relative inverse depth is mapped linearly onto [MinDistance, MaxDistance].
	MinDistance float64 `yaml:"min_distance" json:"min_distance"`
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
}

// DefaultConfig returns defaults for MiDaS v2.1 small.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ModelPath:   "models/midas_v21_small_256.onnx",
		InputSize:   256,
		MinDistance: 0.3,
		MaxDistance: 8.0,
	}
}

// Validate checks the distance range and input size.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("depth: input_size must be positive, got %d", c.InputSize)
	}
	if c.MinDistance < 0 || c.MaxDistance <= c.MinDistance {
		return fmt.Errorf("depth: need 0 <= min_distance < max_distance, got %v..%v", c.MinDistance, c.MaxDistance)
	}
	return nil
}

// MiDaS runs a monocular depth network through OpenCV's DNN module.
type MiDaS struct {
	net    gocv.Net
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex
}

// NewMiDaS loads the ONNX model named in cfg.
func NewMiDaS(cfg Config, logger *slog.Logger) (*MiDaS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("depth: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &MiDaS{net: net, cfg: cfg, logger: logger.With("component", "depth.midas")}, nil
}

// Estimate returns a depth map at model resolution.
func (m *MiDaS) Estimate(ctx context.Context, f *frame.Frame) (*Map, error) {
	if !f.Valid() {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("depth: decode frame %d: %w", f.Seq, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrUnavailable
	}

	size := image.Pt(m.cfg.InputSize, m.cfg.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(123.675, 116.28, 103.53, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) < 2 {
		return nil, fmt.Errorf("depth: unexpected output shape %v", dims)
	}
	h, w := dims[len(dims)-2], dims[len(dims)-1]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("depth: read output: %w", err)
	}
	if len(data) < w*h {
		return nil, fmt.Errorf("depth: short output %d < %d", len(data), w*h)
	}

	return FromInverse(data[:w*h], w, h, m.cfg.MinDistance, m.cfg.MaxDistance), nil
}

// FromInverse converts relative inverse depth (larger is nearer) into meters.
// Values are normalized to [0,1] and mapped so the nearest pixel lands on
// minDist and the farthest on maxDist.
func FromInverse(inv []float32, w, h int, minDist, maxDist float64) *Map {
	lo, hi := inv[0], inv[0]
	for _, v := range inv {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := float64(hi - lo)

	meters := make([]float32, len(inv))
	for i, v := range inv {
		norm := 1.0
		if span > 0 {
			norm = float64(v-lo) / span
		}
		meters[i] = float32(minDist + (1-norm)*(maxDist-minDist))
	}
	return &Map{Width: w, Height: h, Meters: meters}
}

// Close releases the network.
func (m *MiDaS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}

var _ Estimator = (*MiDaS)(nil)
