// Package novelty decides which detections are worth announcing.
//
// Detections carry no identity across frames, so the Tracker keys its state by
// label. A label is announced when it first appears, then suppressed until its
// debounce window has passed. A label that leaves the frame is forgotten, so
// its return is announced immediately.
package novelty

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/teslashibe/go-narrator/pkg/detection"
)

// NothingDetectedLabel is the label of the synthetic detection emitted after
// a stretch of empty frames.
const NothingDetectedLabel = "__nothing_detected__"

// TrackedLabel is the recency state of one label.
type TrackedLabel struct {
	Label           string    `json:"label"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	LastAnnouncedAt time.Time `json:"last_announced_at,omitempty"` // zero if never announced
}

// Announced reports whether the label has ever been let through.
func (t TrackedLabel) Announced() bool {
	return !t.LastAnnouncedAt.IsZero()
}

// Tracker filters raw per-frame detections down to the ones worth speaking.
// It is safe for concurrent use, though the engine drives it from one goroutine.
type Tracker struct {
	cfg Config

	mu          sync.Mutex
	labels      map[string]*TrackedLabel
	prevSet     []string
	emptySince  time.Time
	lastNothing time.Time
}

// New creates a tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:    cfg,
		labels: make(map[string]*TrackedLabel),
	}
}

// Filter returns the subset of dets worth announcing at now. At most one
// detection per label is returned (the highest scoring), in input order.
// A detector failure should be passed in as an empty slice.
func (t *Tracker) Filter(dets []detection.Detection, now time.Time) []detection.Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := bestPerLabel(dets)
	if len(present) == 0 {
		return t.filterEmpty(now)
	}

	t.emptySince = time.Time{}
	t.lastNothing = time.Time{}

	set := lo.Map(present, func(d detection.Detection, _ int) string { return d.Label })
	sort.Strings(set)
	window := t.cfg.DebounceWindow
	if sameSet(set, t.prevSet) {
		window = t.cfg.ReconfirmWindow
	}

	var out []detection.Detection
	for _, d := range present {
		st, ok := t.labels[d.Label]
		switch {
		case !ok:
			t.labels[d.Label] = &TrackedLabel{Label: d.Label, LastSeenAt: now, LastAnnouncedAt: now}
			out = append(out, d)
		case now.Sub(st.LastAnnouncedAt) >= window:
			st.LastAnnouncedAt = now
			out = append(out, d)
		}
		if st != nil {
			st.LastSeenAt = now
		}
	}

	t.forgetAbsent(set, now)
	t.prevSet = set
	return out
}

// filterEmpty handles a frame with no detections.
func (t *Tracker) filterEmpty(now time.Time) []detection.Detection {
	t.forgetAbsent(nil, now)
	t.prevSet = nil

	if t.emptySince.IsZero() {
		t.emptySince = now
	}
	if now.Sub(t.emptySince) < t.cfg.SilenceWindow {
		return nil
	}
	if !t.lastNothing.IsZero() && now.Sub(t.lastNothing) < t.cfg.SilenceWindow {
		return nil
	}
	t.lastNothing = now
	return []detection.Detection{{Label: NothingDetectedLabel, Score: 1}}
}

// forgetAbsent drops labels not in present, honouring the grace window.
func (t *Tracker) forgetAbsent(present []string, now time.Time) {
	for label, st := range t.labels {
		if lo.Contains(present, label) {
			continue
		}
		if t.cfg.GraceWindow > 0 && now.Sub(st.LastSeenAt) <= t.cfg.GraceWindow {
			continue
		}
		delete(t.labels, label)
	}
}

// Snapshot returns a copy of the tracked labels sorted by label.
func (t *Tracker) Snapshot() []TrackedLabel {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := lo.MapToSlice(t.labels, func(_ string, st *TrackedLabel) TrackedLabel { return *st })
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Len returns the number of tracked labels.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.labels)
}

// Reset forgets everything. Called when the camera source changes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labels = make(map[string]*TrackedLabel)
	t.prevSet = nil
	t.emptySince = time.Time{}
	t.lastNothing = time.Time{}
}

// bestPerLabel keeps the highest scoring detection of each label, in order of
// first appearance.
func bestPerLabel(dets []detection.Detection) []detection.Detection {
	idx := make(map[string]int, len(dets))
	out := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Label == "" {
			continue
		}
		if i, ok := idx[d.Label]; ok {
			if d.Score > out[i].Score {
				out[i] = d
			}
			continue
		}
		idx[d.Label] = len(out)
		out = append(out, d)
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	onlyA, onlyB := lo.Difference(a, b)
	return len(onlyA) == 0 && len(onlyB) == 0
}
