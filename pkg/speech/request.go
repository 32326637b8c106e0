// Package speech owns the spoken-audio channel.
//
// Producers never speak directly: they submit a Request to the Arbiter, which
// enforces one utterance at a time, drops ambient narration while busy or
// muted, and lets user-triggered channels pre-empt whatever is playing.
package speech

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Channel identifies who is asking to speak.
type Channel int

const (
	// Ambient is background object narration, the lowest priority.
	Ambient Channel = iota
	// Location is the location read-back flow.
	Location
	// CommandFeedback acknowledges a user command or reports an error.
	CommandFeedback
)

var channelNames = map[Channel]string{
	Ambient:         "ambient",
	Location:        "location",
	CommandFeedback: "command_feedback",
}

func (c Channel) String() string {
	if s, ok := channelNames[c]; ok {
		return s
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// MarshalText encodes the channel by name.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Preempts reports whether the channel may interrupt a playing utterance.
func (c Channel) Preempts() bool {
	return c == Location || c == CommandFeedback
}

// Request is one announcement. It is consumed once spoken or dropped.
type Request struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	Channel   Channel   `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRequest creates a request with a fresh ID.
func NewRequest(text string, ch Channel, now time.Time) Request {
	return Request{
		ID:        uuid.New(),
		Text:      text,
		Channel:   ch,
		CreatedAt: now,
	}
}
