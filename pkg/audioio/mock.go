package audioio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MockSink records utterances in memory. By default Flush returns at once;
// with HoldPlayback, Flush blocks until Release or Clear so tests can
// interrupt an utterance mid-playback.
type MockSink struct {
	cfg    Config
	logger *slog.Logger
	hold   bool

	mu         sync.Mutex
	cur        *mockUtterance
	utterances [][]int16
	closed     bool

	flushes atomic.Int64
	clears  atomic.Int64
}

type mockUtterance struct {
	samples  []int16
	done     chan struct{}
	finished bool
	cleared  bool
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// HoldPlayback makes Flush block until Release or Clear.
func HoldPlayback() MockSinkOption {
	return func(m *MockSink) { m.hold = true }
}

// NewMockSink creates a mock sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{cfg: cfg, logger: logger.With("component", "audioio.mock_sink")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Write appends to the current utterance.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.cur == nil {
		m.cur = &mockUtterance{done: make(chan struct{})}
	}
	m.cur.samples = append(m.cur.samples, chunk.convert(m.cfg.SampleRate, m.cfg.Channels)...)
	return nil
}

// Flush completes the utterance, or waits for Release when holding.
func (m *MockSink) Flush(ctx context.Context) error {
	m.flushes.Add(1)

	m.mu.Lock()
	u := m.cur
	if u == nil {
		m.mu.Unlock()
		return nil
	}
	if !m.hold {
		m.finishLocked(u)
	}
	m.mu.Unlock()

	select {
	case <-u.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u.cleared {
		return ErrCleared
	}
	return nil
}

func (m *MockSink) finishLocked(u *mockUtterance) {
	if u.finished {
		return
	}
	u.finished = true
	close(u.done)
	m.utterances = append(m.utterances, u.samples)
	if m.cur == u {
		m.cur = nil
	}
}

// Release lets a held Flush finish normally.
func (m *MockSink) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		m.finishLocked(m.cur)
	}
}

// Clear discards the current utterance.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.cur
	if u == nil {
		return nil
	}
	m.cur = nil
	u.cleared = true
	u.finished = true
	close(u.done)
	m.clears.Add(1)
	return nil
}

// Playing reports whether an utterance is in progress.
func (m *MockSink) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// Utterances returns the completed utterances.
func (m *MockSink) Utterances() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]int16, len(m.utterances))
	copy(out, m.utterances)
	return out
}

// Flushes returns how many times Flush was called.
func (m *MockSink) Flushes() int { return int(m.flushes.Load()) }

// Clears returns how many playing utterances were cleared.
func (m *MockSink) Clears() int { return int(m.clears.Load()) }

func (m *MockSink) Config() Config { return m.cfg }

func (m *MockSink) Name() string { return string(BackendMock) }

// Stats returns counters.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var samples int64
	for _, u := range m.utterances {
		samples += int64(len(u))
	}
	return SinkStats{
		Utterances:     int64(len(m.utterances)),
		SamplesWritten: samples,
		Cleared:        m.clears.Load(),
		Playing:        m.cur != nil,
		Backend:        m.Name(),
	}
}

// Close clears and rejects further writes.
func (m *MockSink) Close() error {
	_ = m.Clear()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// MockSource delivers chunks pushed by the test.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  chan AudioChunk
	running bool
	closed  bool
	starts  int
}

// NewMockSource creates a mock source.
func NewMockSource(cfg Config, logger *slog.Logger) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSource{cfg: cfg, logger: logger.With("component", "audioio.mock_source")}
}

// Start opens a new stream.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}
	m.running = true
	m.starts++
	m.stream = make(chan AudioChunk, 64)
	return nil
}

// Push delivers a chunk if running. It reports whether the chunk was accepted.
func (m *MockSource) Push(chunk AudioChunk) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	select {
	case m.stream <- chunk:
		return true
	default:
		return false
	}
}

// Stream returns the current stream, or a closed channel when idle.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		ch := make(chan AudioChunk)
		close(ch)
		return ch
	}
	return m.stream
}

// Stop closes the stream.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stream)
	}
	return nil
}

// Running reports whether capture is active.
func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Starts returns how many times capture was started.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockSource) Config() Config { return m.cfg }

func (m *MockSource) Name() string { return string(BackendMock) }

// Close stops capture permanently.
func (m *MockSource) Close() error {
	_ = m.Stop()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var (
	_ SinkWithStats = (*MockSink)(nil)
	_ Source        = (*MockSource)(nil)
)
