package command_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/recognizer"
	"github.com/teslashibe/go-narrator/pkg/speech"
)

const whereText = "You are in 12 Main Street, Springfield. State: Oregon."

type harness struct {
	out   *speech.MockOutput
	arb   *speech.Arbiter
	rec   *recognizer.Mock
	clk   *clock.Mock
	coord *command.Coordinator
	runs  *atomic.Int32
	evs   []command.Event
}

func newHarness(t *testing.T, flow command.FlowFunc, mutate ...func(*command.Config)) *harness {
	t.Helper()
	h := &harness{
		out:  speech.NewMockOutput(),
		rec:  recognizer.NewMock(),
		clk:  clock.NewMock(),
		runs: new(atomic.Int32),
	}
	h.arb = speech.NewArbiter(h.out, nil)

	if flow == nil {
		flow = func(ctx context.Context) (string, error) { return whereText, nil }
	}
	counted := command.FlowFunc(func(ctx context.Context) (string, error) {
		h.runs.Add(1)
		return flow(ctx)
	})

	cfg := command.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := command.New(cfg, h.arb,
		command.WithRecognizer(h.rec),
		command.WithFlow(command.Location, counted),
		command.WithClock(h.clk),
	)
	if err != nil {
		t.Fatal(err)
	}
	c.OnEvent(func(ev command.Event) { h.evs = append(h.evs, ev) })
	h.coord = c
	return h
}

func (h *harness) result(t *testing.T) command.Result {
	t.Helper()
	select {
	case r := <-h.coord.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("flow produced no result")
		return command.Result{}
	}
}

func ambient(text string) speech.Request {
	return speech.NewRequest(text, speech.Ambient, time.Now())
}

func TestMatch(t *testing.T) {
	h := newHarness(t, nil, func(c *command.Config) {
		c.Triggers["where am i"] = command.Location
	})
	tests := []struct {
		text string
		want bool
	}{
		{"location", true},
		{"What is my LOCATION please", true},
		{"where am I", true},
		{"allocation", true},
		{"what time is it", false},
		{"", false},
	}
	for _, tc := range tests {
		cmd, ok := h.coord.Match(tc.text)
		if ok != tc.want || (ok && cmd != command.Location) {
			t.Errorf("Match(%q) = %q, %v", tc.text, cmd, ok)
		}
	}
}

func TestLocationFlow_MutesUntilUtteranceEnds(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// Ambient narration is playing when the command arrives.
	if !h.arb.Request(ambient("chair is far")) {
		t.Fatal("ambient rejected")
	}

	if !h.coord.HandleTranscript(ctx, "location") {
		t.Fatal("transcript should match")
	}
	if !h.arb.Muted() {
		t.Fatal("ambient should be muted while the flow runs")
	}
	if h.arb.Request(ambient("dog is near")) {
		t.Error("ambient accepted while muted")
	}

	h.coord.HandleResult(h.result(t))

	cur := h.arb.Speaking()
	if cur == nil || cur.Channel != speech.Location || cur.Text != whereText {
		t.Fatalf("speaking = %+v, want location read-back", cur)
	}
	if !h.arb.Muted() {
		t.Fatal("should stay muted until the read-back ends")
	}

	id := h.out.Finish()
	h.arb.Complete(id)
	h.coord.HandleSpeechEnded(id)

	if h.arb.Muted() {
		t.Error("should unmute after the read-back ends")
	}
	if !h.arb.Request(ambient("dog is near")) {
		t.Error("next ambient announcement should speak")
	}

	want := []command.Event{
		command.EventCommandDetected{Command: command.Location, Transcript: "location"},
		command.EventFlowCompleted{Command: command.Location, Text: whereText},
	}
	if diff := cmp.Diff(want, h.evs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestLocationFlow_IgnoresRepeatWhileRunning(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context) (string, error) {
		<-release
		return whereText, nil
	})
	ctx := context.Background()

	h.coord.HandleTranscript(ctx, "location")
	h.coord.HandleTranscript(ctx, "location location")
	close(release)
	h.coord.HandleResult(h.result(t))

	if got := h.runs.Load(); got != 1 {
		t.Errorf("flow runs = %d, want 1", got)
	}
	if got := h.coord.Status().Pending; got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestLocationFlow_ErrorTextIsSpoken(t *testing.T) {
	denied := errors.New("permission denied")
	h := newHarness(t, func(ctx context.Context) (string, error) {
		return "User denied the request for Geolocation.", denied
	})

	_ = h.coord.Trigger(context.Background(), command.Location)
	h.coord.HandleResult(h.result(t))

	if diff := cmp.Diff([]string{"User denied the request for Geolocation."}, h.out.Spoken()); diff != "" {
		t.Errorf("spoken mismatch (-want +got):\n%s", diff)
	}
	id := h.out.Finish()
	h.coord.HandleSpeechEnded(id)

	last, ok := h.evs[len(h.evs)-1].(command.EventFlowCompleted)
	if !ok || !errors.Is(last.Err, denied) {
		t.Errorf("last event = %#v", h.evs[len(h.evs)-1])
	}
}

func TestLocationFlow_CompletesWhenNothingIsSpoken(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		h := newHarness(t, func(ctx context.Context) (string, error) { return "", nil })
		_ = h.coord.Trigger(context.Background(), command.Location)
		h.coord.HandleResult(h.result(t))
		if h.arb.Muted() {
			t.Error("should unmute at once")
		}
	})

	t.Run("speech unavailable", func(t *testing.T) {
		h := newHarness(t, nil)
		h.out.SpeakErr = errors.New("no audio device")
		_ = h.coord.Trigger(context.Background(), command.Location)
		h.coord.HandleResult(h.result(t))
		if h.arb.Muted() {
			t.Error("should unmute when the read-back cannot be spoken")
		}
	})
}

func TestLocationFlow_PreemptedReadBackStillCompletes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_ = h.coord.Trigger(ctx, command.Location)
	h.coord.HandleResult(h.result(t))
	loc := h.arb.Speaking()

	// The "Voice commands on" feedback pre-empts the read-back.
	_ = h.coord.SetActive(ctx, true)
	for len(h.out.Events()) > 0 {
		ev := <-h.out.Events()
		if ev.Kind == speech.Ended {
			h.arb.Complete(ev.ID)
			h.coord.HandleSpeechEnded(ev.ID)
			if ev.ID != loc.ID {
				t.Errorf("unexpected end for %s", ev.ID)
			}
		}
	}
	if h.arb.Muted() {
		t.Error("pre-empted read-back should still complete the flow")
	}
}

func TestLocationFlow_OverlappingFlowsKeepMute(t *testing.T) {
	h := newHarness(t, nil)
	release, other := make(chan struct{}), make(chan struct{})
	c, err := command.New(command.Config{
		Triggers:        map[string]command.Command{"location": command.Location, "help": "help"},
		FlowTimeout:     time.Second,
		RestartInterval: time.Second,
		RestartBurst:    1,
	}, h.arb,
		command.WithFlow(command.Location, command.FlowFunc(func(ctx context.Context) (string, error) {
			<-release
			return whereText, nil
		})),
		command.WithFlow("help", command.FlowFunc(func(ctx context.Context) (string, error) {
			<-other
			return "Say location to hear where you are.", nil
		})),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c.HandleTranscript(ctx, "location")
	c.HandleTranscript(ctx, "help")
	close(release)
	r := <-c.Results()
	c.HandleResult(r)
	id := h.out.Finish()
	c.HandleSpeechEnded(id)

	if !h.arb.Muted() {
		t.Error("second flow still pending, ambient must stay muted")
	}
	close(other)
	c.HandleResult(<-c.Results())
	c.HandleSpeechEnded(h.out.Finish())
	if h.arb.Muted() {
		t.Error("all flows done, should unmute")
	}
}

func TestTrigger_UnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Trigger(context.Background(), "dance"); !errors.Is(err, command.ErrUnknownCommand) {
		t.Errorf("err = %v", err)
	}
	if h.arb.Muted() {
		t.Error("unknown command must not mute")
	}
}

func TestVoiceToggle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.coord.Toggle(ctx); err != nil {
		t.Fatal(err)
	}
	if !h.coord.Active() || !h.coord.Listening() || h.rec.Starts() != 1 {
		t.Fatalf("after on: %+v starts=%d", h.coord.Status(), h.rec.Starts())
	}
	h.arb.Complete(h.out.Finish())

	if err := h.coord.Toggle(ctx); err != nil {
		t.Fatal(err)
	}
	if h.coord.Active() || h.rec.Stops() != 1 {
		t.Fatalf("after off: %+v stops=%d", h.coord.Status(), h.rec.Stops())
	}

	// The Ended from Stop must not restart the recognizer.
	h.coord.HandleRecognizerEvent(ctx, <-h.rec.Events())
	select {
	case <-h.coord.Wake():
		t.Error("inactive recognizer must not be restarted")
	default:
	}
	if h.coord.Listening() {
		t.Error("should not be listening")
	}

	if diff := cmp.Diff([]string{"Voice commands on", "Voice commands off"}, h.out.Spoken()); diff != "" {
		t.Errorf("feedback mismatch (-want +got):\n%s", diff)
	}
}

func TestRecognizer_RestartsWhileActive(t *testing.T) {
	h := newHarness(t, nil, func(c *command.Config) {
		c.RestartBurst = 1
		c.RestartInterval = 2 * time.Second
	})
	ctx := context.Background()
	_ = h.coord.SetActive(ctx, true)

	// First end: a token is available, restart is immediate.
	h.rec.End(nil)
	h.coord.HandleRecognizerEvent(ctx, <-h.rec.Events())
	if h.coord.Listening() {
		t.Fatal("should not be listening between sessions")
	}
	select {
	case <-h.coord.Wake():
		h.coord.Restart(ctx)
	default:
		t.Fatal("expected immediate restart")
	}
	if h.rec.Starts() != 2 || !h.coord.Listening() {
		t.Fatalf("starts = %d", h.rec.Starts())
	}

	// Second end inside the interval: restart waits for the limiter.
	h.rec.End(errors.New("network"))
	for len(h.rec.Events()) > 0 {
		h.coord.HandleRecognizerEvent(ctx, <-h.rec.Events())
	}
	select {
	case <-h.coord.Wake():
		t.Fatal("restart should be delayed")
	default:
	}

	h.clk.Add(2 * time.Second)
	select {
	case <-h.coord.Wake():
		h.coord.Restart(ctx)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed restart never fired")
	}
	if h.rec.Starts() != 3 {
		t.Errorf("starts = %d, want 3", h.rec.Starts())
	}
}

func TestRecognizer_TranscriptsIgnoredWhenInactive(t *testing.T) {
	h := newHarness(t, nil)
	h.coord.HandleRecognizerEvent(context.Background(), recognizer.Event{Kind: recognizer.Result, Text: "location"})
	if h.arb.Muted() || h.runs.Load() != 0 {
		t.Error("inactive recognizer results must be ignored")
	}
}

func TestRecognizer_StartFailureRetries(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.StartErr = errors.New("connection refused")
	ctx := context.Background()

	if err := h.coord.SetActive(ctx, true); err == nil {
		t.Fatal("expected start error")
	}
	if !h.coord.Active() || h.coord.Listening() {
		t.Fatalf("status = %+v", h.coord.Status())
	}

	h.rec.StartErr = nil
	select {
	case <-h.coord.Wake():
		h.coord.Restart(ctx)
	default:
		t.Fatal("expected a retry")
	}
	if !h.coord.Listening() {
		t.Error("retry should have started the recognizer")
	}
}

func TestBegin_StartsSilently(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.coord.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.coord.Active() || !h.rec.Running() {
		t.Fatal("Begin should start the recognizer")
	}
	if got := h.out.Spoken(); len(got) != 0 {
		t.Errorf("Begin spoke %q", got)
	}

	off := newHarness(t, nil, func(c *command.Config) { c.StartListening = false })
	if err := off.coord.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if off.coord.Active() || off.rec.Starts() != 0 {
		t.Error("Begin should do nothing when start_listening is off")
	}
}

func TestNoRecognizer(t *testing.T) {
	out := speech.NewMockOutput()
	arb := speech.NewArbiter(out, nil)
	c, err := command.New(command.DefaultConfig(), arb)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Toggle(context.Background()); !errors.Is(err, command.ErrNoRecognizer) {
		t.Errorf("err = %v", err)
	}
	if diff := cmp.Diff([]string{"Voice commands are not available"}, out.Spoken()); diff != "" {
		t.Errorf("spoken mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*command.Config)
		wantErr bool
	}{
		{"default", func(c *command.Config) {}, false},
		{"no triggers", func(c *command.Config) { c.Triggers = nil }, true},
		{"upper case trigger", func(c *command.Config) { c.Triggers = map[string]command.Command{"Location": command.Location} }, true},
		{"blank trigger", func(c *command.Config) { c.Triggers = map[string]command.Command{" ": command.Location} }, true},
		{"zero timeout", func(c *command.Config) { c.FlowTimeout = 0 }, true},
		{"zero burst", func(c *command.Config) { c.RestartBurst = 0 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := command.DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
