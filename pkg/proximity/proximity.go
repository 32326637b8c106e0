// Package proximity classifies detections as near or far and words them for
// speech.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/teslashibe/go-narrator/pkg/depth"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/novelty"
)

// Config holds evaluator settings.
type Config struct {
	// Threshold in meters. A detection strictly closer than this is urgent.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Detail appends the distance to the phrase.
	Detail bool `yaml:"detail" json:"detail"`

	// NothingPhrase is spoken for the tracker's nothing-detected notice.
	NothingPhrase string `yaml:"nothing_phrase" json:"nothing_phrase"`
}

// DefaultConfig returns a 5 m threshold without distance detail.
func DefaultConfig() Config {
	return Config{
		Threshold:     5.0,
		Detail:        false,
		NothingPhrase: "I am not able to detect any object.",
	}
}

// Validate checks the threshold.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("proximity: threshold must be a positive number, got %v", c.Threshold)
	}
	return nil
}

// Assessment is the evaluator's verdict for one detection.
type Assessment struct {
	Label          string  `json:"label"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
	Known          bool    `json:"known"` // false when no usable depth sample
	Urgent         bool    `json:"urgent"`
	Phrase         string  `json:"phrase"`
	Score          float64 `json:"score"`

	// Err is the depth failure that made the distance unknown, if any.
	Err error `json:"-"`
}

// Evaluator fuses bounding-box position with a depth sample. It keeps no
// state between calls.
type Evaluator struct {
	cfg     Config
	sampler depth.Sampler
}

// New creates an evaluator. sampler may be nil, in which case every distance
// is unknown.
func New(cfg Config, sampler depth.Sampler) *Evaluator {
	return &Evaluator{cfg: cfg, sampler: sampler}
}

// Evaluate classifies det as seen in f.
func (e *Evaluator) Evaluate(ctx context.Context, det detection.Detection, f *frame.Frame) Assessment {
	a := Assessment{Label: det.Label, Score: det.Score}

	if det.Label == novelty.NothingDetectedLabel {
		a.Phrase = e.cfg.NothingPhrase
		return a
	}

	meters, err := e.sample(ctx, det, f)
	if err != nil {
		a.Err = err
		a.Phrase = det.Label
		return a
	}

	a.DistanceMeters = meters
	a.Known = true
	a.Urgent = meters < e.cfg.Threshold
	a.Phrase = e.phrase(a)
	return a
}

func (e *Evaluator) sample(ctx context.Context, det detection.Detection, f *frame.Frame) (float64, error) {
	if e.sampler == nil {
		return 0, depth.ErrUnavailable
	}
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return 0, depth.ErrOutOfRange
	}

	cx, cy := det.BBox.Center()
	p := depth.Point{X: cx / float64(f.Width), Y: cy / float64(f.Height)}
	if !p.InFrame() {
		return 0, depth.ErrOutOfRange
	}

	meters, err := e.sampler.SampleDepth(ctx, f, p)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters <= 0 {
		return 0, depth.ErrOutOfRange
	}
	return meters, nil
}

func (e *Evaluator) phrase(a Assessment) string {
	verdict := "far"
	if a.Urgent {
		verdict = "near"
	}
	if e.cfg.Detail {
		return fmt.Sprintf("%s is %s, %.1f meters away", a.Label, verdict, a.DistanceMeters)
	}
	return fmt.Sprintf("%s is %s", a.Label, verdict)
}

// Threshold returns the configured urgency threshold.
func (e *Evaluator) Threshold() float64 {
	return e.cfg.Threshold
}

// Rank orders assessments by speaking priority: urgent first, then nearest
// known distance, then score. The sort is stable.
func Rank(as []Assessment) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i], as[j]
		if a.Urgent != b.Urgent {
			return a.Urgent
		}
		if a.Known != b.Known {
			return a.Known
		}
		if a.Known && a.DistanceMeters != b.DistanceMeters {
			return a.DistanceMeters < b.DistanceMeters
		}
		return a.Score > b.Score
	})
}

// IsUnavailable reports whether a's distance is unknown because no depth
// capability was present, as opposed to a bad sample.
func (a Assessment) IsUnavailable() bool {
	return errors.Is(a.Err, depth.ErrUnavailable)
}
