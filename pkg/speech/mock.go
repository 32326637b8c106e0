package speech

import (
	"sync"

	"github.com/google/uuid"
)

// MockCall records one Speak or Cancel.
type MockCall struct {
	Method string
	ID     uuid.UUID
	Text   string
}

// MockOutput is an Output for tests. Utterances stay "playing" until Finish
// is called, unless AutoFinish is set.
type MockOutput struct {
	// SpeakErr, when set, makes Speak fail.
	SpeakErr error

	// AutoFinish emits Started and Ended immediately on Speak.
	AutoFinish bool

	mu      sync.Mutex
	calls   []MockCall
	current uuid.UUID
	events  chan Event
}

// NewMockOutput creates a mock with a generous event buffer.
func NewMockOutput() *MockOutput {
	return &MockOutput{events: make(chan Event, 256)}
}

// Speak records the call and emits Started.
func (m *MockOutput) Speak(id uuid.UUID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: "Speak", ID: id, Text: text})
	if m.SpeakErr != nil {
		return m.SpeakErr
	}
	m.current = id
	m.events <- Event{Kind: Started, ID: id}
	if m.AutoFinish {
		m.current = uuid.Nil
		m.events <- Event{Kind: Ended, ID: id}
	}
	return nil
}

// Cancel records the call and ends the current utterance with ErrCancelled.
func (m *MockOutput) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: "Cancel", ID: m.current})
	if m.current != uuid.Nil {
		m.events <- Event{Kind: Ended, ID: m.current, Err: ErrCancelled}
		m.current = uuid.Nil
	}
	return nil
}

// Finish ends the current utterance normally and returns its ID.
func (m *MockOutput) Finish() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.current
	if id != uuid.Nil {
		m.events <- Event{Kind: Ended, ID: id}
		m.current = uuid.Nil
	}
	return id
}

// Current returns the ID of the playing utterance, or uuid.Nil.
func (m *MockOutput) Current() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Spoken returns the text of every Speak call in order.
func (m *MockOutput) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c.Method == "Speak" {
			out = append(out, c.Text)
		}
	}
	return out
}

// CallCount returns how often method was called.
func (m *MockOutput) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *MockOutput) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Events returns the lifecycle channel.
func (m *MockOutput) Events() <-chan Event {
	return m.events
}

// Close is a no-op.
func (m *MockOutput) Close() error { return nil }

var _ Output = (*MockOutput)(nil)
