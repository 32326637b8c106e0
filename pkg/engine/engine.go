// Package engine runs the narrator: one event loop owns the novelty tracker,
// the speech arbiter and the command coordinator, and a single worker turns
// camera frames into detections for it.
//
// The worker processes exactly one frame at a time and only starts the next
// once the loop has consumed the previous result. Speech lifecycle events,
// recognizer events, flow results and dashboard gestures are handled on the
// same loop, between frames.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/gesture"
	"github.com/teslashibe/go-narrator/pkg/novelty"
	"github.com/teslashibe/go-narrator/pkg/preference"
	"github.com/teslashibe/go-narrator/pkg/proximity"
	"github.com/teslashibe/go-narrator/pkg/recognizer"
	"github.com/teslashibe/go-narrator/pkg/speech"
)

var (
	// ErrRunning is returned by Run when the engine is already running.
	ErrRunning = errors.New("engine: already running")

	// ErrStopped is returned by actions after Run has returned.
	ErrStopped = errors.New("engine: stopped")
)

// Components are the parts the engine drives. Camera, Detector, Tracker,
// Evaluator and Arbiter are required.
type Components struct {
	Camera    *frame.Switcher
	Detector  detection.Detector
	Tracker   *novelty.Tracker
	Evaluator *proximity.Evaluator
	Arbiter   *speech.Arbiter

	// Output delivers the lifecycle events of the arbiter's output.
	Output speech.Output

	// Coordinator defaults to one with no recognizer and no flows.
	Coordinator *command.Coordinator
	Recognizer  recognizer.Recognizer

	// Preferences, when set, records every camera flip.
	Preferences *preference.Preferences
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for tracker time, gestures and retries.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is the narrator's coordination engine.
type Engine struct {
	cfg Config
	Components
	clock    clock.Clock
	logger   *slog.Logger
	gestures *gesture.Detector

	inbox   chan event
	next    chan struct{}
	done    chan struct{}
	running atomic.Bool

	// Loop-owned state.
	generation  uint64
	inflight    bool
	flipping    bool
	retry       *clock.Timer
	cameraDown  bool
	speechOn    bool
	frameCount  uint64
	detectFails uint64

	mu       sync.Mutex
	status   Status
	onFrame  []func(Report)
	onStatus []func(Status)
}

// New creates an engine.
func New(cfg Config, c Components, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case c.Camera == nil:
		return nil, errors.New("engine: camera is required")
	case c.Detector == nil:
		return nil, errors.New("engine: detector is required")
	case c.Tracker == nil, c.Evaluator == nil, c.Arbiter == nil:
		return nil, errors.New("engine: tracker, evaluator and arbiter are required")
	}

	e := &Engine{
		cfg:        cfg,
		Components: c,
		clock:      clock.New(),
		logger:     slog.Default(),
		inbox:      make(chan event, 64),
		next:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		speechOn:   cfg.SpeechEnabled,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")

	if e.Coordinator == nil {
		coord, err := command.New(command.DefaultConfig(), c.Arbiter,
			command.WithLogger(e.logger), command.WithClock(e.clock))
		if err != nil {
			return nil, err
		}
		e.Coordinator = coord
	}
	e.gestures = gesture.New(cfg.Gesture, e.clock, func() {
		_ = e.post(context.Background(), actionDoubleTap)
	}, e.logger)

	e.status.SpeechEnabled = e.speechOn
	return e, nil
}

// OnFrame registers fn for every processed frame. fn runs on the loop and
// must not block.
func (e *Engine) OnFrame(fn func(Report)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFrame = append(e.onFrame, fn)
}

// OnStatus registers fn for status changes. fn runs on the loop and must not
// block.
func (e *Engine) OnStatus(fn func(Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = append(e.onStatus, fn)
}

// Run drives the engine until ctx is cancelled. It closes the camera on
// return.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(e.done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.work(gctx) })
	g.Go(func() error { return e.loop(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if e.retry != nil {
		e.retry.Stop()
	}
	err = multierr.Append(err, e.Camera.Close())
	if e.Recognizer != nil {
		err = multierr.Append(err, e.Recognizer.Stop())
	}
	e.logger.Info("engine stopped", "frames", e.frameCount)
	return err
}

// post queues ev for the loop.
func (e *Engine) post(ctx context.Context, ev event) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.inbox <- ev:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tap records a dashboard tap. Two taps in quick succession read back the
// location.
func (e *Engine) Tap() {
	e.gestures.Tap()
}

// ToggleVoice turns voice commands on or off.
func (e *Engine) ToggleVoice(ctx context.Context) error {
	return e.post(ctx, actionToggleVoice)
}

// ToggleSpeech turns ambient narration on or off. Command feedback and
// location read-back are not affected.
func (e *Engine) ToggleSpeech(ctx context.Context) error {
	return e.post(ctx, actionToggleSpeech)
}

// FlipCamera switches between the user and environment cameras.
func (e *Engine) FlipCamera(ctx context.Context) error {
	return e.post(ctx, actionFlip)
}

// Locate runs the location read-back.
func (e *Engine) Locate(ctx context.Context) error {
	return e.post(ctx, actionLocate)
}

// Status returns a snapshot for the dashboard.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := e.status
	if s.LastReport != nil {
		r := *s.LastReport
		s.LastReport = &r
	}
	e.mu.Unlock()

	s.Speech = e.Arbiter.Snapshot()
	s.Tracked = e.Tracker.Snapshot()
	s.Facing = e.Camera.Facing()
	s.Generation = e.Camera.Generation()
	s.CameraReady = e.Camera.Ready()
	return s
}

func (e *Engine) loop(ctx context.Context) error {
	var (
		speechEvents <-chan speech.Event
		recEvents    <-chan recognizer.Event
	)
	if e.Output != nil {
		speechEvents = e.Output.Events()
	}
	if e.Recognizer != nil {
		recEvents = e.Recognizer.Events()
	}
	results, wake := e.Coordinator.Results(), e.Coordinator.Wake()

	if err := e.Coordinator.Begin(ctx); err != nil {
		e.logger.Warn("voice commands did not start", "error", err)
	}
	e.requestFrame()
	e.publishStatus()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-e.inbox:
			e.handle(ctx, ev)

		case ev, ok := <-speechEvents:
			if !ok {
				speechEvents = nil
				continue
			}
			e.handleSpeech(ev)

		case ev, ok := <-recEvents:
			if !ok {
				recEvents = nil
				continue
			}
			e.Coordinator.HandleRecognizerEvent(ctx, ev)
			e.publishStatus()

		case r := <-results:
			e.Coordinator.HandleResult(r)
			if r.Err != nil {
				e.setError(r.Err)
			}
			e.publishStatus()

		case <-wake:
			e.Coordinator.Restart(ctx)
			e.publishStatus()
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case frameResult:
		e.handleFrame(ctx, ev)
		return
	case flipDone:
		e.handleFlipDone(ev)
	case cameraRetry:
		e.retry = nil
		e.requestFrame()
	case action:
		e.handleAction(ctx, ev)
	}
	e.publishStatus()
}

func (e *Engine) handleAction(ctx context.Context, a action) {
	e.logger.Debug("action", "action", a)
	switch a {
	case actionToggleVoice:
		if err := e.Coordinator.Toggle(ctx); err != nil {
			e.logger.Warn("voice toggle", "error", err)
		}
	case actionToggleSpeech:
		e.speechOn = !e.speechOn
		if !e.speechOn {
			if cur := e.Arbiter.Speaking(); cur != nil && cur.Channel == speech.Ambient {
				e.Arbiter.Stop()
			}
		}
		e.logger.Info("ambient narration", "enabled", e.speechOn)
	case actionFlip:
		e.flip(ctx)
	case actionLocate, actionDoubleTap:
		if err := e.Coordinator.Trigger(ctx, command.Location); err != nil {
			e.logger.Warn("location not started", "error", err)
		}
	}
}

func (e *Engine) handleSpeech(ev speech.Event) {
	switch ev.Kind {
	case speech.Started:
		e.logger.Debug("speech started", "id", ev.ID)
	case speech.Ended:
		if ev.Err != nil && !errors.Is(ev.Err, speech.ErrCancelled) {
			e.logger.Warn("speech failed", "id", ev.ID, "error", ev.Err)
		}
		e.Arbiter.Complete(ev.ID)
		e.Coordinator.HandleSpeechEnded(ev.ID)
		e.publishStatus()
	}
}

// requestFrame asks the worker for the next frame unless one is in flight,
// a flip is opening the camera, or a retry is pending.
func (e *Engine) requestFrame() {
	if e.inflight || e.flipping || e.retry != nil {
		return
	}
	e.inflight = true
	e.next <- struct{}{}
}

func (e *Engine) handleFrame(ctx context.Context, r frameResult) {
	e.inflight = false
	defer e.requestFrame()

	// A flip closes the old camera under the worker; whatever error that
	// causes belongs to the old source.
	if r.generation != e.Camera.Generation() || (r.cameraErr != nil && e.flipping) {
		e.logger.Debug("discarding stale frame", "generation", r.generation)
		e.publishFrame(Report{Generation: r.generation, At: e.clock.Now(), Stale: true})
		return
	}
	if r.cameraErr != nil {
		e.cameraFailed(r.cameraErr)
		return
	}
	e.cameraRecovered()

	if r.generation != e.generation {
		// First frame from a new source.
		e.Tracker.Reset()
		e.generation = r.generation
	}
	e.frameCount++

	now := e.clock.Now()
	report := Report{
		Seq:        r.frame.Seq,
		Generation: r.generation,
		At:         now,
		Detections: len(r.detections),
	}

	dets := r.detections
	if r.detectErr != nil {
		e.detectFails++
		e.logger.Warn("detection failed", "seq", r.frame.Seq, "error", r.detectErr)
		report.Err = r.detectErr.Error()
		dets = nil
	}

	emitted := e.Tracker.Filter(dets, now)
	for _, d := range emitted {
		a, ok := r.assessed[d.Label]
		if !ok {
			a = e.Evaluator.Evaluate(ctx, d, r.frame)
		}
		report.Assessments = append(report.Assessments, a)
	}
	proximity.Rank(report.Assessments)

	// One ambient utterance per frame; the rest wait for a later re-offer.
	if len(report.Assessments) > 0 && e.speechOn {
		req := speech.NewRequest(report.Assessments[0].Phrase, speech.Ambient, now)
		out := e.Arbiter.Submit(req)
		report.Reason = out.Reason
		if out.Accepted {
			report.Spoken = &req
			e.logger.Info("announce", "text", req.Text, "urgent", report.Assessments[0].Urgent)
		}
	}

	e.publishFrame(report)
	if len(report.Assessments) > 0 || r.detectErr != nil {
		e.publishStatus()
	}
}

func (e *Engine) cameraFailed(err error) {
	e.setError(err)
	if !e.cameraDown {
		e.cameraDown = true
		e.logger.Error("camera not available", "error", err)
		e.Arbiter.Request(speech.NewRequest(e.cfg.CameraUnavailablePhrase, speech.CommandFeedback, e.clock.Now()))
	} else {
		e.logger.Debug("camera still not available", "error", err)
	}
	if cerr := e.Camera.Close(); cerr != nil {
		e.logger.Debug("close failed camera", "error", cerr)
	}
	e.scheduleRetry()
	e.publishStatus()
}

func (e *Engine) cameraRecovered() {
	if !e.cameraDown {
		return
	}
	e.cameraDown = false
	e.logger.Info("camera available", "facing", e.Camera.Facing())
}

func (e *Engine) scheduleRetry() {
	if e.retry != nil {
		e.retry.Stop()
	}
	e.retry = e.clock.AfterFunc(e.cfg.CameraRetry, func() {
		_ = e.post(context.Background(), cameraRetry{})
	})
}

func (e *Engine) cancelRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
}

// flip opens the other camera off the loop. Results already in flight carry
// the old generation and are discarded when they arrive.
func (e *Engine) flip(ctx context.Context) {
	if e.flipping {
		e.logger.Debug("flip already in progress")
		return
	}
	e.flipping = true
	e.cancelRetry()
	e.Tracker.Reset()

	go func() {
		facing, gen, err := e.Camera.Flip(ctx)
		_ = e.post(ctx, flipDone{facing: facing, generation: gen, err: err})
	}()
}

func (e *Engine) handleFlipDone(d flipDone) {
	e.flipping = false
	if e.Preferences != nil {
		if err := e.Preferences.SetCameraMode(preference.CameraMode(d.facing)); err != nil {
			e.logger.Warn("camera preference not saved", "error", err)
		}
	}
	if d.err != nil {
		e.cameraFailed(d.err)
		return
	}
	e.cameraRecovered()
	e.cancelRetry()
	e.logger.Info("camera flipped", "facing", d.facing, "generation", d.generation)
	e.requestFrame()
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.status.LastError = err.Error()
	e.mu.Unlock()
}

func (e *Engine) publishFrame(r Report) {
	e.mu.Lock()
	if !r.Stale {
		e.status.LastReport = &r
		e.status.Frames = e.frameCount
		e.status.DetectErrors = e.detectFails
	}
	listeners := e.onFrame
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(r)
	}
}

func (e *Engine) publishStatus() {
	e.mu.Lock()
	e.status.Voice = e.Coordinator.Status()
	e.status.SpeechEnabled = e.speechOn
	listeners := e.onStatus
	e.mu.Unlock()

	if len(listeners) == 0 {
		return
	}
	s := e.Status()
	for _, fn := range listeners {
		fn(s)
	}
}
