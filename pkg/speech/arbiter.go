package speech

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// State is the arbiter's channel state.
type State string

const (
	Idle     State = "idle"
	Speaking State = "speaking"
)

// Reason explains an arbiter decision.
type Reason string

const (
	ReasonAccepted    Reason = "accepted"
	ReasonMuted       Reason = "muted"
	ReasonBusy        Reason = "busy"
	ReasonUnavailable Reason = "unavailable"
	ReasonEmpty       Reason = "empty"
)

// Outcome is the result of submitting a request.
type Outcome struct {
	Accepted bool
	Reason   Reason

	// Preempted is the utterance cancelled to make room, if any.
	Preempted *Request
}

// Snapshot is a copy of the arbiter's state.
type Snapshot struct {
	State    State    `json:"state"`
	Speaking *Request `json:"speaking,omitempty"`
	Muted    bool     `json:"muted"`
	Stats    Stats    `json:"stats"`
}

// Stats counts arbiter decisions.
type Stats struct {
	Accepted  int            `json:"accepted"`
	Preempted int            `json:"preempted"`
	Completed int            `json:"completed"`
	Rejected  map[Reason]int `json:"rejected"`
}

// Arbiter is the sole owner of the speech output. At most one request is
// speaking at any time.
type Arbiter struct {
	out    Output
	logger *slog.Logger

	mu        sync.Mutex
	speaking  *Request
	muted     bool
	outage    bool
	stats     Stats
	listeners []func(Snapshot)
}

// NewArbiter creates an arbiter over out. A nil out leaves the arbiter
// rejecting everything, which keeps the narrator visual-only.
func NewArbiter(out Output, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		out:    out,
		logger: logger.With("component", "speech.arbiter"),
		stats:  Stats{Rejected: make(map[Reason]int)},
	}
}

// Request submits r and reports whether it was accepted.
func (a *Arbiter) Request(r Request) bool {
	return a.Submit(r).Accepted
}

// Submit applies the acceptance policy:
//   - muted drops Ambient
//   - Ambient never interrupts and is never queued
//   - Location and CommandFeedback cancel whatever is playing
//
// Accepted text is handed to the output immediately.
func (a *Arbiter) Submit(r Request) Outcome {
	a.mu.Lock()
	out := a.submitLocked(r)
	if out.Accepted {
		a.stats.Accepted++
	} else {
		a.stats.Rejected[out.Reason]++
	}
	if out.Preempted != nil {
		a.stats.Preempted++
	}
	snap, listeners := a.snapshotLocked(), a.listeners
	a.mu.Unlock()

	if out.Accepted || out.Preempted != nil {
		notify(listeners, snap)
	}
	return out
}

func (a *Arbiter) submitLocked(r Request) Outcome {
	if r.Text == "" {
		return Outcome{Reason: ReasonEmpty}
	}
	if r.Channel == Ambient {
		if a.muted {
			return Outcome{Reason: ReasonMuted}
		}
		if a.speaking != nil {
			return Outcome{Reason: ReasonBusy}
		}
	}
	if a.out == nil {
		a.markOutage(ErrUnavailable)
		return Outcome{Reason: ReasonUnavailable}
	}

	var preempted *Request
	if a.speaking != nil {
		preempted = a.speaking
		a.speaking = nil
		if err := a.out.Cancel(); err != nil {
			a.logger.Warn("cancel failed", "id", preempted.ID, "error", err)
		}
		a.logger.Debug("preempted",
			"cancelled", preempted.Channel.String(),
			"by", r.Channel.String(),
		)
	}

	if err := a.out.Speak(r.ID, r.Text); err != nil {
		a.markOutage(err)
		return Outcome{Reason: ReasonUnavailable, Preempted: preempted}
	}
	if a.outage {
		a.outage = false
		a.logger.Info("speech output recovered")
	}

	req := r
	a.speaking = &req
	return Outcome{Accepted: true, Reason: ReasonAccepted, Preempted: preempted}
}

// markOutage logs the first failure of an outage only.
func (a *Arbiter) markOutage(err error) {
	if a.outage {
		return
	}
	a.outage = true
	a.logger.Warn("speech output unavailable, continuing without audio", "error", err)
}

// Complete handles the output's end event. It returns false for stale IDs,
// such as the end of an utterance that was already pre-empted.
func (a *Arbiter) Complete(id uuid.UUID) bool {
	a.mu.Lock()
	if a.speaking == nil || a.speaking.ID != id {
		a.mu.Unlock()
		return false
	}
	a.speaking = nil
	a.stats.Completed++
	snap, listeners := a.snapshotLocked(), a.listeners
	a.mu.Unlock()

	notify(listeners, snap)
	return true
}

// Stop cancels the current utterance, if any, and returns it.
func (a *Arbiter) Stop() *Request {
	a.mu.Lock()
	cur := a.speaking
	if cur == nil {
		a.mu.Unlock()
		return nil
	}
	a.speaking = nil
	if a.out != nil {
		_ = a.out.Cancel()
	}
	snap, listeners := a.snapshotLocked(), a.listeners
	a.mu.Unlock()

	notify(listeners, snap)
	return cur
}

// SetMuted changes the mute state. Muting does not interrupt the current
// utterance.
func (a *Arbiter) SetMuted(muted bool) {
	a.mu.Lock()
	if a.muted == muted {
		a.mu.Unlock()
		return
	}
	a.muted = muted
	snap, listeners := a.snapshotLocked(), a.listeners
	a.mu.Unlock()

	a.logger.Debug("mute changed", "muted", muted)
	notify(listeners, snap)
}

// Muted reports the mute state.
func (a *Arbiter) Muted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.muted
}

// Speaking returns a copy of the current request, or nil when idle.
func (a *Arbiter) Speaking() *Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speaking == nil {
		return nil
	}
	r := *a.speaking
	return &r
}

// State returns Idle or Speaking.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speaking != nil {
		return Speaking
	}
	return Idle
}

// Snapshot returns a copy of the full state.
func (a *Arbiter) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// OnChange registers fn to be called after every state transition. fn runs
// on the caller's goroutine and must not call back into the arbiter's
// mutating methods.
func (a *Arbiter) OnChange(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Arbiter) snapshotLocked() Snapshot {
	s := Snapshot{State: Idle, Muted: a.muted}
	if a.speaking != nil {
		r := *a.speaking
		s.State = Speaking
		s.Speaking = &r
	}
	s.Stats = a.stats
	s.Stats.Rejected = make(map[Reason]int, len(a.stats.Rejected))
	for k, v := range a.stats.Rejected {
		s.Stats.Rejected[k] = v
	}
	return s
}

func notify(listeners []func(Snapshot), s Snapshot) {
	for _, fn := range listeners {
		fn(s)
	}
}
