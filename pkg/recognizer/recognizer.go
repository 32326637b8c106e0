// Package recognizer turns microphone audio into transcripts.
//
// A Recognizer runs one session at a time. Sessions end on their own (server
// close, timeout, error) or when Stop is called; either way an Ended event is
// delivered, and it is up to the caller to decide whether to Start again.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-narrator/pkg/audioio"
)

var (
	// ErrRunning is returned by Start while a session is still open.
	ErrRunning = errors.New("recognizer: session already running")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recognizer: closed")
)

// EventKind identifies a recognizer event.
type EventKind int

const (
	// Result carries a final transcript.
	Result EventKind = iota
	// Ended marks the end of a session.
	Ended
	// Error reports a session failure. An Ended event follows.
	Error
)

func (k EventKind) String() string {
	switch k {
	case Result:
		return "result"
	case Ended:
		return "ended"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is delivered on the Events channel.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Recognizer is a streaming speech recognizer.
type Recognizer interface {
	// Start opens a session. It returns ErrRunning if one is open. Start
	// must not wait on the network: connection failures arrive as Error
	// followed by Ended.
	Start(ctx context.Context) error

	// Stop asks the current session to end. The Ended event arrives
	// asynchronously.
	Stop() error

	// Events returns the event channel.
	Events() <-chan Event

	Close() error
}

// Backend names a recognizer implementation.
type Backend string

const (
	BackendVosk Backend = "vosk"
	BackendMock Backend = "mock"
	BackendNone Backend = "none"
)

// New creates a recognizer for cfg.Backend. BackendNone returns nil, nil:
// voice commands are then unavailable.
func New(cfg Config, source audioio.Source, logger *slog.Logger) (Recognizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendVosk:
		if source == nil {
			return nil, errors.New("recognizer: vosk backend needs an audio source")
		}
		return NewVosk(cfg, source, logger), nil
	case BackendMock:
		return NewMock(), nil
	default:
		return nil, nil
	}
}
