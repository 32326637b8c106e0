package audioio

import (
	"context"
	"io"
)

// Sink plays utterances. Each utterance is a sequence of Writes ended by
// Flush; Clear abandons the current utterance immediately.
type Sink interface {
	// Write queues audio for the current utterance, starting playback if idle.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush ends the utterance and blocks until it has finished playing.
	// It returns ErrCleared if Clear interrupted it.
	Flush(ctx context.Context) error

	// Clear stops playback now and discards anything buffered.
	Clear() error

	Config() Config
	Name() string
	io.Closer
}

// SinkStats counts sink activity.
type SinkStats struct {
	Utterances     int64  `json:"utterances"`
	SamplesWritten int64  `json:"samples_written"`
	Cleared        int64  `json:"cleared"`
	Playing        bool   `json:"playing"`
	Backend        string `json:"backend"`
}

// SinkWithStats is a Sink that reports statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
