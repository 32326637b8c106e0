package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-narrator/pkg/recognizer"
	"github.com/teslashibe/go-narrator/pkg/speech"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecognizer enables voice commands.
func WithRecognizer(r recognizer.Recognizer) Option {
	return func(c *Coordinator) { c.rec = r }
}

// WithFlow registers the flow run for cmd.
func WithFlow(cmd Command, f Flow) Option {
	return func(c *Coordinator) { c.flows[cmd] = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock sets the clock used for restart limiting.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// Status is the coordinator state shown on the dashboard.
type Status struct {
	Active    bool `json:"active"`
	Listening bool `json:"listening"`
	Pending   int  `json:"pending_flows"`
}

// Coordinator is not safe for concurrent use: every method except Results
// and Wake must be called from the engine's event loop. Flows run on their
// own goroutines and report back through Results.
type Coordinator struct {
	cfg     Config
	arbiter *speech.Arbiter
	rec     recognizer.Recognizer
	flows   map[Command]Flow
	logger  *slog.Logger
	clock   clock.Clock

	triggers []string

	// pending counts flows between detection and completion; ambient
	// narration stays muted while it is non-zero.
	pending   int
	running   map[Command]bool
	utterance map[uuid.UUID]Result

	active    bool
	listening bool
	limiter   *rate.Limiter

	results   chan Result
	wake      chan struct{}
	listeners []func(Event)
}

// New creates a coordinator that speaks through arbiter.
func New(cfg Config, arbiter *speech.Arbiter, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:       cfg,
		arbiter:   arbiter,
		flows:     make(map[Command]Flow),
		logger:    slog.Default(),
		clock:     clock.New(),
		running:   make(map[Command]bool),
		utterance: make(map[uuid.UUID]Result),
		limiter:   rate.NewLimiter(rate.Every(cfg.RestartInterval), cfg.RestartBurst),
		results:   make(chan Result, 8),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "command.coordinator")

	// Longest phrase first so "my location" wins over "location".
	for phrase := range cfg.Triggers {
		c.triggers = append(c.triggers, phrase)
	}
	sort.Slice(c.triggers, func(i, j int) bool {
		if len(c.triggers[i]) != len(c.triggers[j]) {
			return len(c.triggers[i]) > len(c.triggers[j])
		}
		return c.triggers[i] < c.triggers[j]
	})
	return c, nil
}

// OnEvent registers fn for every coordinator event.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) publish(ev Event) {
	for _, fn := range c.listeners {
		fn(ev)
	}
}

// Results delivers finished flow runs. The loop passes each to HandleResult.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Wake fires when a delayed recognizer restart is due. The loop calls
// Restart.
func (c *Coordinator) Wake() <-chan struct{} {
	return c.wake
}

// Match returns the command triggered by text, if any.
func (c *Coordinator) Match(text string) (Command, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range c.triggers {
		if strings.Contains(lower, phrase) {
			return c.cfg.Triggers[phrase], true
		}
	}
	return "", false
}

// HandleTranscript starts the flow for a recognised command. It reports
// whether text matched a trigger.
func (c *Coordinator) HandleTranscript(ctx context.Context, text string) bool {
	cmd, ok := c.Match(text)
	if !ok {
		c.logger.Debug("no command", "transcript", text)
		return false
	}
	if err := c.dispatch(ctx, EventCommandDetected{Command: cmd, Transcript: text}); err != nil {
		c.logger.Warn("command not run", "command", cmd, "error", err)
	}
	return true
}

// Trigger starts cmd without a transcript, as a gesture does.
func (c *Coordinator) Trigger(ctx context.Context, cmd Command) error {
	return c.dispatch(ctx, EventCommandDetected{Command: cmd})
}

func (c *Coordinator) dispatch(ctx context.Context, ev EventCommandDetected) error {
	flow, ok := c.flows[ev.Command]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, ev.Command)
	}
	if c.running[ev.Command] {
		c.logger.Debug("flow already running", "command", ev.Command)
		return nil
	}

	c.publish(ev)
	c.logger.Info("command detected", "command", ev.Command, "transcript", ev.Transcript)

	c.pending++
	c.arbiter.SetMuted(true)
	c.running[ev.Command] = true

	go func() {
		fctx, cancel := context.WithTimeout(ctx, c.cfg.FlowTimeout)
		defer cancel()
		text, err := flow.Run(fctx)
		select {
		case c.results <- Result{Command: ev.Command, Text: text, Err: err}:
		case <-ctx.Done():
		}
	}()
	return nil
}

// HandleResult speaks a finished flow's text. The flow completes when that
// utterance ends, or immediately if nothing could be spoken.
func (c *Coordinator) HandleResult(r Result) {
	delete(c.running, r.Command)
	if r.Err != nil {
		c.logger.Warn("flow failed", "command", r.Command, "error", r.Err)
	}
	if r.Text == "" {
		c.complete(r)
		return
	}

	req := speech.NewRequest(r.Text, channelFor(r.Command), c.clock.Now())
	if !c.arbiter.Request(req) {
		c.complete(r)
		return
	}
	c.utterance[req.ID] = r
}

// HandleSpeechEnded completes the flow whose utterance id just ended,
// whether it finished or was pre-empted.
func (c *Coordinator) HandleSpeechEnded(id uuid.UUID) {
	r, ok := c.utterance[id]
	if !ok {
		return
	}
	delete(c.utterance, id)
	c.complete(r)
}

func (c *Coordinator) complete(r Result) {
	if c.pending > 0 {
		c.pending--
	}
	if c.pending == 0 {
		c.arbiter.SetMuted(false)
	}
	c.logger.Debug("flow completed", "command", r.Command, "pending", c.pending)
	c.publish(EventFlowCompleted(r))
}

func channelFor(cmd Command) speech.Channel {
	if cmd == Location {
		return speech.Location
	}
	return speech.CommandFeedback
}

// Begin turns voice commands on without announcing it when StartListening
// is set and a recognizer is present.
func (c *Coordinator) Begin(ctx context.Context) error {
	if !c.cfg.StartListening || c.rec == nil || c.active {
		return nil
	}
	c.active = true
	err := c.start(ctx)
	c.publishListening()
	return err
}

// Toggle flips voice commands on or off.
func (c *Coordinator) Toggle(ctx context.Context) error {
	return c.SetActive(ctx, !c.active)
}

// SetActive turns voice commands on or off and announces the change. The
// active flag alone decides whether ended sessions are restarted.
func (c *Coordinator) SetActive(ctx context.Context, active bool) error {
	if c.rec == nil {
		c.feedback(c.cfg.UnavailablePhrase)
		return ErrNoRecognizer
	}
	if active == c.active {
		return nil
	}
	c.active = active

	var err error
	if active {
		c.feedback(c.cfg.OnPhrase)
		err = c.start(ctx)
	} else {
		c.feedback(c.cfg.OffPhrase)
		err = c.rec.Stop()
	}
	c.logger.Info("voice commands", "active", active)
	c.publishListening()
	return err
}

func (c *Coordinator) feedback(text string) {
	c.arbiter.Request(speech.NewRequest(text, speech.CommandFeedback, c.clock.Now()))
}

func (c *Coordinator) start(ctx context.Context) error {
	err := c.rec.Start(ctx)
	switch {
	case err == nil, errors.Is(err, recognizer.ErrRunning):
		// A session that is still winding down will report Ended and be
		// restarted from there.
		c.listening = true
		return nil
	default:
		c.listening = false
		c.logger.Warn("recognizer start failed", "error", err)
		c.scheduleRestart()
		return err
	}
}

// HandleRecognizerEvent reacts to a recognizer event.
func (c *Coordinator) HandleRecognizerEvent(ctx context.Context, ev recognizer.Event) {
	switch ev.Kind {
	case recognizer.Result:
		if c.active {
			c.HandleTranscript(ctx, ev.Text)
		}
	case recognizer.Error:
		c.logger.Warn("recognizer error", "error", ev.Err)
	case recognizer.Ended:
		c.listening = false
		if c.active {
			c.scheduleRestart()
		}
		c.publishListening()
	}
}

func (c *Coordinator) scheduleRestart() {
	now := c.clock.Now()
	delay := c.limiter.ReserveN(now, 1).DelayFrom(now)
	if delay <= 0 {
		c.signalWake()
		return
	}
	c.logger.Debug("recognizer restart delayed", "delay", delay)
	c.clock.AfterFunc(delay, c.signalWake)
}

func (c *Coordinator) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Restart starts a new recognizer session if voice commands are still on.
func (c *Coordinator) Restart(ctx context.Context) {
	if !c.active || c.listening || c.rec == nil {
		return
	}
	if c.start(ctx) == nil {
		c.logger.Debug("recognizer restarted")
		c.publishListening()
	}
}

func (c *Coordinator) publishListening() {
	c.publish(EventListeningChanged{Active: c.active, Listening: c.listening})
}

// Active reports whether voice commands are on.
func (c *Coordinator) Active() bool { return c.active }

// Listening reports whether a recognizer session is open.
func (c *Coordinator) Listening() bool { return c.listening }

// Status returns a copy of the coordinator state.
func (c *Coordinator) Status() Status {
	return Status{Active: c.active, Listening: c.listening, Pending: c.pending}
}
