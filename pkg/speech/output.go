package speech

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable means no speech output is configured or it cannot start.
	ErrUnavailable = errors.New("speech: output unavailable")

	// ErrCancelled ends an utterance that was pre-empted or stopped.
	ErrCancelled = errors.New("speech: utterance cancelled")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("speech: output closed")
)

// EventKind is a speech lifecycle transition.
type EventKind int

const (
	Started EventKind = iota
	Ended
)

func (k EventKind) String() string {
	if k == Started {
		return "started"
	}
	return "ended"
}

// Event reports an utterance lifecycle change. Err is set on Ended when the
// utterance failed or was cancelled.
type Event struct {
	Kind EventKind
	ID   uuid.UUID
	Err  error
}

// Output is the speech capability: fire-and-forget Speak, immediate Cancel,
// lifecycle reported on Events.
type Output interface {
	// Speak starts speaking text. It must not block on playback.
	Speak(id uuid.UUID, text string) error

	// Cancel stops the current utterance now.
	Cancel() error

	// Events delivers Started and Ended for every accepted utterance.
	Events() <-chan Event

	Close() error
}
