package audioio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
)

// writeBlock bounds each pipe write so a cancelled context is noticed while
// aplay is still draining earlier audio.
const writeBlock = 4096

// playback is one aplay process, i.e. one utterance.
type playback struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}
	err     error
	cleared atomic.Bool
}

func (p *playback) kill() {
	p.cleared.Store(true)
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// ExecSink plays audio by piping raw PCM into an aplay process, one process
// per utterance.
type ExecSink struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cur    *playback
	closed bool

	utterances atomic.Int64
	samples    atomic.Int64
	cleared    atomic.Int64
}

// NewExecSink creates a sink using cfg.PlayCommand.
func NewExecSink(cfg Config, logger *slog.Logger) *ExecSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSink{cfg: cfg, logger: logger.With("component", "audioio.sink")}
}

func (s *ExecSink) startLocked() (*playback, error) {
	cmd := exec.Command(s.cfg.PlayCommand, append(s.cfg.alsaArgs(s.cfg.PlaybackDevice), "-")...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("audioio: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audioio: start %s: %w", s.cfg.PlayCommand, err)
	}

	p := &playback{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	s.cur = p
	s.utterances.Add(1)
	s.logger.Debug("playback started", "pid", cmd.Process.Pid)
	return p, nil
}

// Write sends audio to the current utterance.
func (s *ExecSink) Write(ctx context.Context, chunk AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	p := s.cur
	if p == nil {
		var err error
		if p, err = s.startLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	samples := chunk.convert(s.cfg.SampleRate, s.cfg.Channels)
	data := SamplesToBytes(samples)
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			s.drop(p)
			return err
		}
		n := min(len(data), writeBlock)
		if _, err := p.stdin.Write(data[:n]); err != nil {
			if p.cleared.Load() {
				return ErrCleared
			}
			return fmt.Errorf("audioio: write: %w", err)
		}
		data = data[n:]
	}
	s.samples.Add(int64(len(samples)))
	return nil
}

// drop kills p and forgets it if it is still the current utterance.
func (s *ExecSink) drop(p *playback) {
	s.mu.Lock()
	if s.cur == p {
		s.cur = nil
	}
	s.mu.Unlock()
	p.kill()
}

// Flush closes the utterance's input and waits for aplay to drain it.
func (s *ExecSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	p := s.cur
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	_ = p.stdin.Close()

	var err error
	select {
	case <-p.done:
		switch {
		case p.cleared.Load():
			err = ErrCleared
		case p.err != nil:
			err = fmt.Errorf("audioio: %s: %w", s.cfg.PlayCommand, p.err)
		}
	case <-ctx.Done():
		p.kill()
		<-p.done
		err = ctx.Err()
	}

	s.mu.Lock()
	if s.cur == p {
		s.cur = nil
	}
	s.mu.Unlock()
	return err
}

// Clear kills the current utterance.
func (s *ExecSink) Clear() error {
	s.mu.Lock()
	p := s.cur
	s.cur = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	p.kill()
	s.cleared.Add(1)
	s.logger.Debug("playback cleared")
	return nil
}

func (s *ExecSink) Config() Config { return s.cfg }

func (s *ExecSink) Name() string { return string(BackendExec) }

// Stats returns counters.
func (s *ExecSink) Stats() SinkStats {
	s.mu.Lock()
	playing := s.cur != nil
	s.mu.Unlock()
	return SinkStats{
		Utterances:     s.utterances.Load(),
		SamplesWritten: s.samples.Load(),
		Cleared:        s.cleared.Load(),
		Playing:        playing,
		Backend:        s.Name(),
	}
}

// Close stops playback and rejects further writes.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Clear()
}

// ExecSource captures audio from an arecord process.
type ExecSource struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stream chan AudioChunk
	closed bool
}

// NewExecSource creates a source using cfg.RecordCommand.
func NewExecSource(cfg Config, logger *slog.Logger) *ExecSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSource{cfg: cfg, logger: logger.With("component", "audioio.source")}
}

// Start launches arecord. Calling Start while running is a no-op.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, s.cfg.RecordCommand, s.cfg.alsaArgs(s.cfg.CaptureDevice)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audioio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioio: start %s: %w", s.cfg.RecordCommand, err)
	}

	stream := make(chan AudioChunk, 16)
	s.cmd, s.stream = cmd, stream
	go s.readLoop(cmd, stdout, stream)

	s.logger.Info("capture started", "device", s.cfg.CaptureDevice, "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *ExecSource) readLoop(cmd *exec.Cmd, stdout io.Reader, stream chan AudioChunk) {
	defer close(stream)

	r := bufio.NewReaderSize(stdout, s.cfg.BufferBytes()*4)
	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn("capture read failed", "error", err)
			}
			break
		}
		chunk := ChunkFromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		select {
		case stream <- chunk:
		default:
			s.logger.Debug("capture buffer full, dropping chunk")
		}
	}

	err := cmd.Wait()
	s.mu.Lock()
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Debug("capture process exited", "error", err)
	}
}

// Stream returns the current session's channel, or a closed channel when idle.
func (s *ExecSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		ch := make(chan AudioChunk)
		close(ch)
		return ch
	}
	return s.stream
}

// Stop kills arecord; the stream closes once the reader drains.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

func (s *ExecSource) Config() Config { return s.cfg }

func (s *ExecSource) Name() string { return string(BackendExec) }

// Close stops capture permanently.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

var (
	_ SinkWithStats = (*ExecSink)(nil)
	_ Source        = (*ExecSource)(nil)
)
