package detection

import (
	"context"
	"sync"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

// Mock implements Detector for testing.
// Results are taken from DetectFunc, or from the Script queue when DetectFunc is nil.
type Mock struct {
	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, f *frame.Frame) ([]Detection, error)

	mu     sync.Mutex
	script []MockResult
	frames []uint64
	closed bool
}

// MockResult is one scripted Detect outcome.
type MockResult struct {
	Detections []Detection
	Err        error
}

// NewMock creates a mock that replays results in order, then returns nothing.
func NewMock(results ...MockResult) *Mock {
	return &Mock{script: results}
}

// Push appends scripted results.
func (m *Mock) Push(results ...MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
}

// Detect records the frame and returns the next scripted result.
func (m *Mock) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	m.mu.Lock()
	if f != nil {
		m.frames = append(m.frames, f.Seq)
	}
	fn := m.DetectFunc
	var next *MockResult
	if fn == nil && len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		next = &r
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, f)
	}
	if next == nil {
		return nil, nil
	}
	return next.Detections, next.Err
}

// Frames returns the sequence numbers of every frame passed to Detect.
func (m *Mock) Frames() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.frames))
	copy(out, m.frames)
	return out
}

// Close records the call.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Detector = (*Mock)(nil)
