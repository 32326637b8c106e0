package engine

import (
	"time"

	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/novelty"
	"github.com/teslashibe/go-narrator/pkg/proximity"
	"github.com/teslashibe/go-narrator/pkg/speech"
)

// event is anything posted to the loop's inbox.
type event interface {
	isEvent()
}

// frameResult is the worker's output for one frame request.
type frameResult struct {
	generation uint64
	frame      *frame.Frame
	detections []detection.Detection
	assessed   map[string]proximity.Assessment

	detectErr error
	// cameraErr is an open or read failure; no frame was produced.
	cameraErr error
}

type flipDone struct {
	facing     frame.Facing
	generation uint64
	err        error
}

type cameraRetry struct{}

type action int

const (
	actionToggleVoice action = iota
	actionToggleSpeech
	actionFlip
	actionLocate
	actionDoubleTap
)

var actionNames = map[action]string{
	actionToggleVoice:  "toggle_voice",
	actionToggleSpeech: "toggle_speech",
	actionFlip:         "flip_camera",
	actionLocate:       "locate",
	actionDoubleTap:    "double_tap",
}

func (a action) String() string { return actionNames[a] }

func (frameResult) isEvent() {}
func (flipDone) isEvent()    {}
func (cameraRetry) isEvent() {}
func (action) isEvent()      {}

// Report describes one processed frame.
type Report struct {
	Seq        uint64    `json:"seq"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
	Detections int       `json:"detections"`

	// Stale is set for results from a camera that has since been replaced.
	// Nothing else in a stale report is meaningful.
	Stale bool `json:"stale,omitempty"`

	// Assessments are the newly relevant detections, in speaking order.
	Assessments []proximity.Assessment `json:"assessments,omitempty"`

	// Spoken is the request the arbiter accepted, if any.
	Spoken *speech.Request `json:"spoken,omitempty"`
	Reason speech.Reason   `json:"reason,omitempty"`

	Err string `json:"error,omitempty"`
}

// Status is the dashboard view of the engine.
type Status struct {
	Speech        speech.Snapshot        `json:"speech"`
	Voice         command.Status         `json:"voice"`
	SpeechEnabled bool                   `json:"speech_enabled"`
	Facing        frame.Facing           `json:"facing"`
	Generation    uint64                 `json:"generation"`
	CameraReady   bool                   `json:"camera_ready"`
	Tracked       []novelty.TrackedLabel `json:"tracked"`
	Frames        uint64                 `json:"frames"`
	DetectErrors  uint64                 `json:"detect_errors"`
	LastError     string                 `json:"last_error,omitempty"`
	LastReport    *Report                `json:"last_report,omitempty"`
}
