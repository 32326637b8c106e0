package recognizer

import (
	"context"
	"sync"
)

// Mock is a Recognizer driven by the test.
type Mock struct {
	// StartErr, when set, makes Start fail.
	StartErr error

	mu      sync.Mutex
	running bool
	closed  bool
	starts  int
	stops   int
	events  chan Event
}

// NewMock creates an idle mock.
func NewMock() *Mock {
	return &Mock{events: make(chan Event, 64)}
}

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.running {
		return ErrRunning
	}
	m.running = true
	m.starts++
	return nil
}

// Stop ends the session and emits Ended.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	if m.running {
		m.running = false
		m.events <- Event{Kind: Ended}
	}
	return nil
}

// Say delivers a transcript. It reports false when no session is open.
func (m *Mock) Say(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.events <- Event{Kind: Result, Text: text}
	return true
}

// End simulates the session ending on its own, optionally with an error.
func (m *Mock) End(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	if err != nil {
		m.events <- Event{Kind: Error, Err: err}
	}
	m.events <- Event{Kind: Ended}
}

// Running reports whether a session is open.
func (m *Mock) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Starts returns how many sessions were opened.
func (m *Mock) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns how many times Stop was called.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

var _ Recognizer = (*Mock)(nil)
