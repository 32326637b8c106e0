// Package command turns voice commands and gestures into flows.
//
// The Coordinator mutes ambient narration while a command flow is in
// flight, routes the flow's text to the speech arbiter and unmutes once
// that utterance has ended. It also owns the recognizer's on/off state.
package command

import (
	"context"
	"errors"
)

// Command names a user command.
type Command string

// Location reads back the user's current address.
const Location Command = "location"

var (
	// ErrUnknownCommand is returned when no flow is registered.
	ErrUnknownCommand = errors.New("command: no flow for command")

	// ErrNoRecognizer is returned when voice commands are unavailable.
	ErrNoRecognizer = errors.New("command: no recognizer")
)

// Flow runs a command. The returned text is spoken even when err is set;
// err is reported to the dashboard.
type Flow interface {
	Run(ctx context.Context) (string, error)
}

// FlowFunc adapts a function to Flow.
type FlowFunc func(ctx context.Context) (string, error)

func (f FlowFunc) Run(ctx context.Context) (string, error) { return f(ctx) }

// Result is a finished flow run waiting to be spoken.
type Result struct {
	Command Command
	Text    string
	Err     error
}

// Event is one of the coordinator's typed events.
type Event interface {
	event()
}

// EventCommandDetected is raised when a transcript or gesture triggers a
// command. Transcript is empty for gestures.
type EventCommandDetected struct {
	Command    Command
	Transcript string
}

// EventFlowCompleted is raised once a flow's utterance has ended, or when
// the flow produced nothing that could be spoken.
type EventFlowCompleted struct {
	Command Command
	Text    string
	Err     error
}

// EventListeningChanged is raised when the recognizer toggles or its
// session state changes.
type EventListeningChanged struct {
	Active    bool
	Listening bool
}

func (EventCommandDetected) event()  {}
func (EventFlowCompleted) event()    {}
func (EventListeningChanged) event() {}
