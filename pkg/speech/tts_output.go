package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-narrator/pkg/audioio"
	"github.com/teslashibe/go-narrator/pkg/tts"
)

// TTSOutput speaks by synthesizing with a tts.Provider and playing the result
// on an audioio.Sink. Utterances run one after another: a new utterance waits
// for the cancelled one to release the sink.
type TTSOutput struct {
	provider tts.Provider
	sink     audioio.Sink
	logger   *slog.Logger

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	last   chan struct{} // closed when the latest utterance goroutine exits
	closed bool
}

// NewTTSOutput creates an output. provider and sink are required.
func NewTTSOutput(provider tts.Provider, sink audioio.Sink, logger *slog.Logger) *TTSOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &TTSOutput{
		provider: provider,
		sink:     sink,
		logger:   logger.With("component", "speech.tts_output"),
		events:   make(chan Event, 32),
		done:     make(chan struct{}),
	}
}

// Speak synthesizes and plays text in the background. Any utterance still
// running is cancelled first.
func (o *TTSOutput) Speak(id uuid.UUID, text string) error {
	if o.provider == nil || o.sink == nil {
		return ErrUnavailable
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	if o.cancel != nil {
		o.cancel()
		_ = o.sink.Clear()
	}
	ctx, cancel := context.WithCancel(context.Background())
	prev, mine := o.last, make(chan struct{})
	o.cancel, o.last = cancel, mine

	go o.run(ctx, id, text, prev, mine)
	return nil
}

func (o *TTSOutput) run(ctx context.Context, id uuid.UUID, text string, prev <-chan struct{}, mine chan struct{}) {
	defer close(mine)

	if prev != nil {
		<-prev
	}
	o.emit(Event{Kind: Started, ID: id})

	err := o.play(ctx, text)
	if ctx.Err() != nil {
		// A write racing Cancel may have opened fresh playback; the next
		// utterance waits on mine, so clearing here only hits our own audio.
		_ = o.sink.Clear()
		err = ErrCancelled
	}
	if err != nil && !errors.Is(err, ErrCancelled) {
		o.logger.Warn("utterance failed", "id", id, "error", err)
	}
	o.emit(Event{Kind: Ended, ID: id, Err: err})
}

func (o *TTSOutput) play(ctx context.Context, text string) error {
	res, err := o.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	chunk := audioio.ChunkFromBytes(res.Audio, res.Format.SampleRate, max(res.Format.Channels, 1))

	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if err := o.sink.Write(ctx, chunk); err != nil {
		if errors.Is(err, audioio.ErrCleared) {
			return ErrCancelled
		}
		return fmt.Errorf("play: %w", err)
	}

	o.logger.Debug("playing", "chars", res.CharCount, "duration", res.Duration)

	if err := o.sink.Flush(ctx); err != nil {
		if errors.Is(err, audioio.ErrCleared) {
			return ErrCancelled
		}
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// Cancel stops the current utterance and clears the sink. It does not wait
// for a pending sink write to return.
func (o *TTSOutput) Cancel() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
	return o.sink.Clear()
}

func (o *TTSOutput) emit(ev Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

// Events returns the lifecycle channel.
func (o *TTSOutput) Events() <-chan Event {
	return o.events
}

// Close cancels playback and stops event delivery.
func (o *TTSOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.cancel != nil {
		o.cancel()
	}
	close(o.done)
	o.mu.Unlock()

	return o.sink.Clear()
}

var _ Output = (*TTSOutput)(nil)
