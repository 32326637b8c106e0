package audioio

import (
	"context"
	"io"
)

// Source captures audio continuously.
type Source interface {
	// Start begins capture. Chunks arrive on Stream until Stop, Close or ctx ends.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Stream returns the channel for the current capture session. It is
	// closed when capture ends.
	Stream() <-chan AudioChunk

	Config() Config
	Name() string
	io.Closer
}
