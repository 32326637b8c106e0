package frame

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
)

// Still replays one image at a fixed rate. It stands in for a camera in demos
// and in tests.
type Still struct {
	jpeg          []byte
	width, height int
	interval      time.Duration
	clk           clock.Clock

	mu     sync.Mutex
	seq    uint64
	last   time.Time
	closed chan struct{}
	once   sync.Once
}

// OpenStill loads the image at path. Non-JPEG images are re-encoded.
func OpenStill(path string, cfg Config, clk clock.Clock) (*Still, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &AcquireError{Facing: FacingEnvironment, Err: err}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(cfg.Quality)); err != nil {
		return nil, fmt.Errorf("frame: encode %s: %w", path, err)
	}
	b := img.Bounds()
	return NewStill(buf.Bytes(), b.Dx(), b.Dy(), cfg.Framerate, clk), nil
}

// NewStill wraps an already encoded JPEG.
func NewStill(jpeg []byte, width, height, fps int, clk clock.Clock) *Still {
	if clk == nil {
		clk = clock.New()
	}
	if fps <= 0 {
		fps = 15
	}
	return &Still{
		jpeg:     jpeg,
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
		clk:      clk,
		closed:   make(chan struct{}),
	}
}

// StillOpener returns an Opener replaying the configured image for either facing.
func StillOpener(cfg Config, clk clock.Clock) Opener {
	return func(ctx context.Context, facing Facing) (Source, error) {
		s, err := OpenStill(cfg.ImagePath, cfg, clk)
		if err != nil {
			return nil, &AcquireError{Facing: facing, Err: err}
		}
		return s, nil
	}
}

// Next waits out the frame interval and returns the image again.
func (s *Still) Next(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	wait := s.interval - s.clk.Since(s.last)
	s.mu.Unlock()

	if wait > 0 {
		timer := s.clk.Timer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, ErrClosed
		case <-timer.C:
		}
	}

	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.last = s.clk.Now()
	return &Frame{
		Seq:        s.seq,
		JPEG:       s.jpeg,
		Width:      s.width,
		Height:     s.height,
		CapturedAt: s.last,
	}, nil
}

// Close stops the source.
func (s *Still) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

var _ Source = (*Still)(nil)
