package frame

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Camera captures frames from a local device through OpenCV.
type Camera struct {
	cfg    Config
	facing Facing
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	img    gocv.Mat
	seq    uint64
	closed bool
}

// OpenCamera opens the device mapped to facing.
func OpenCamera(cfg Config, facing Facing, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	device := cfg.Device(facing)

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, &AcquireError{Facing: facing, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &AcquireError{Facing: facing, Err: fmt.Errorf("device %d not available", device)}
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	logger = logger.With("component", "frame.camera", "facing", facing, "device", device)
	logger.Info("camera opened",
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)

	return &Camera{
		cfg:    cfg,
		facing: facing,
		logger: logger,
		cap:    vc,
		img:    gocv.NewMat(),
	}, nil
}

// CameraOpener returns an Opener backed by local devices.
func CameraOpener(cfg Config, logger *slog.Logger) Opener {
	return func(ctx context.Context, facing Facing) (Source, error) {
		return OpenCamera(cfg, facing, logger)
	}
}

// Next reads the next frame. VideoCapture.Read blocks at the device frame rate,
// which is what paces the narrator's frame loop.
func (c *Camera) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if ok := c.cap.Read(&c.img); !ok {
		return nil, fmt.Errorf("frame: read device %d: %w", c.cfg.Device(c.facing), ErrEmptyFrame)
	}
	if c.img.Empty() {
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.img, []int{gocv.IMWriteJpegQuality, c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("frame: encode jpeg: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	c.seq++
	return &Frame{
		Seq:        c.seq,
		JPEG:       data,
		Width:      c.img.Cols(),
		Height:     c.img.Rows(),
		CapturedAt: time.Now(),
	}, nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.img.Close()
	err := c.cap.Close()
	c.logger.Info("camera closed")
	return err
}

var _ Source = (*Camera)(nil)
