package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-narrator/pkg/audioio"
)

// Vosk streams captured audio to a vosk-server over a websocket.
//
// Protocol: a JSON config message, binary PCM16 frames, then {"eof":1}. The
// server answers with {"partial":...} and {"text":...} messages.
type Vosk struct {
	cfg    Config
	source audioio.Source
	logger *slog.Logger
	dialer websocket.Dialer

	events chan Event
	quit   chan struct{}

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	closed  bool
}

type voskConfig struct {
	Config struct {
		SampleRate int `json:"sample_rate"`
	} `json:"config"`
}

type voskResult struct {
	Text    string `json:"text"`
	Partial string `json:"partial"`
}

// NewVosk creates a recognizer reading from source.
func NewVosk(cfg Config, source audioio.Source, logger *slog.Logger) *Vosk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vosk{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "recognizer.vosk"),
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		events: make(chan Event, 64),
		quit:   make(chan struct{}),
	}
}

// Start starts capture and returns; the server is dialled by the session
// goroutine. A dial failure is reported as Error followed by Ended.
func (v *Vosk) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if v.running {
		return ErrRunning
	}

	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if v.cfg.MaxSession > 0 {
		sctx, cancel = context.WithTimeout(ctx, v.cfg.MaxSession)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	if err := v.source.Start(sctx); err != nil {
		cancel()
		return fmt.Errorf("recognizer: start capture: %w", err)
	}

	v.running, v.stop = true, cancel
	go v.session(sctx, cancel)
	return nil
}

func (v *Vosk) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := v.dialer.DialContext(ctx, v.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("recognizer: dial %s: %w", v.cfg.URL, err)
	}
	var hello voskConfig
	hello.Config.SampleRate = v.cfg.SampleRate
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("recognizer: send config: %w", err)
	}
	v.logger.Info("listening", "url", v.cfg.URL)
	return conn, nil
}

func (v *Vosk) session(ctx context.Context, cancel context.CancelFunc) {
	err := v.converse(ctx, cancel)

	cancel()
	_ = v.source.Stop()

	v.mu.Lock()
	v.running, v.stop = false, nil
	v.mu.Unlock()

	if err != nil {
		v.logger.Warn("session failed", "error", err)
		v.emit(Event{Kind: Error, Err: err})
	}
	v.logger.Debug("session ended")
	v.emit(Event{Kind: Ended})
}

func (v *Vosk) converse(ctx context.Context, cancel context.CancelFunc) error {
	conn, err := v.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped while dialling.
			return nil
		}
		return err
	}
	defer conn.Close()

	var eofSent atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return v.read(conn, &eofSent)
	})
	g.Go(func() error {
		err := v.pump(gctx, conn)
		eofSent.Store(true)
		_ = conn.SetReadDeadline(time.Now().Add(v.cfg.FinalTimeout))
		return err
	})
	return g.Wait()
}

// pump forwards captured audio until ctx ends or capture stops, then sends
// end of stream.
func (v *Vosk) pump(ctx context.Context, conn *websocket.Conn) error {
	stream := v.source.Stream()
	for {
		select {
		case <-ctx.Done():
			return v.sendEOF(conn)
		case chunk, ok := <-stream:
			if !ok {
				return v.sendEOF(conn)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, v.encode(chunk)); err != nil {
				return fmt.Errorf("recognizer: send audio: %w", err)
			}
		}
	}
}

func (v *Vosk) sendEOF(conn *websocket.Conn) error {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof":1}`)); err != nil {
		v.logger.Debug("eof not sent", "error", err)
	}
	return nil
}

func (v *Vosk) encode(chunk audioio.AudioChunk) []byte {
	samples := chunk.Samples
	if chunk.Channels == 2 {
		samples = audioio.StereoToMono(samples)
	}
	return audioio.SamplesToBytes(audioio.Resample(samples, chunk.SampleRate, v.cfg.SampleRate))
}

func (v *Vosk) read(conn *websocket.Conn, eofSent *atomic.Bool) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if eofSent.Load() {
				return nil
			}
			return fmt.Errorf("recognizer: read: %w", err)
		}

		var res voskResult
		if err := json.Unmarshal(msg, &res); err != nil {
			v.logger.Debug("ignoring message", "error", err)
			continue
		}
		if res.Partial != "" {
			v.logger.Debug("partial", "text", res.Partial)
		}
		if res.Text != "" {
			v.logger.Info("heard", "text", res.Text)
			v.emit(Event{Kind: Result, Text: res.Text})
		}
	}
}

func (v *Vosk) emit(ev Event) {
	select {
	case v.events <- ev:
	case <-v.quit:
	}
}

// Stop ends the current session. It is a no-op when idle.
func (v *Vosk) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stop != nil {
		v.stop()
	}
	return nil
}

// Running reports whether a session is open.
func (v *Vosk) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Vosk) Events() <-chan Event {
	return v.events
}

// Close stops any session and releases the audio source.
func (v *Vosk) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	if v.stop != nil {
		v.stop()
	}
	close(v.quit)
	v.mu.Unlock()

	return v.source.Close()
}

var _ Recognizer = (*Vosk)(nil)
