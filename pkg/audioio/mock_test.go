package audioio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func mockConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	return cfg
}

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(mockConfig(), nil)
	defer src.Close()

	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}
	if src.Starts() != 1 {
		t.Errorf("Starts = %d, want 1", src.Starts())
	}

	stream := src.Stream()
	if !src.Push(AudioChunk{Samples: []int16{1, 2}, SampleRate: 24000, Channels: 1}) {
		t.Fatal("Push rejected while running")
	}
	if got := <-stream; len(got.Samples) != 2 {
		t.Errorf("received %d samples", len(got.Samples))
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op: %v", err)
	}
	if _, ok := <-stream; ok {
		t.Error("stream should be closed after Stop")
	}
	if src.Push(AudioChunk{}) {
		t.Error("Push accepted after Stop")
	}
}

func TestMockSource_Closed(t *testing.T) {
	src := NewMockSource(mockConfig(), nil)
	_ = src.Close()
	if err := src.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestMockSink_Utterance(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	ctx := context.Background()

	_ = sink.Write(ctx, AudioChunk{Samples: []int16{1, 2, 3}, SampleRate: 24000, Channels: 1})
	_ = sink.Write(ctx, AudioChunk{Samples: []int16{4}, SampleRate: 24000, Channels: 1})
	if !sink.Playing() {
		t.Fatal("sink should be playing after Write")
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := [][]int16{{1, 2, 3, 4}}
	if diff := cmp.Diff(want, sink.Utterances()); diff != "" {
		t.Errorf("utterances mismatch (-want +got):\n%s", diff)
	}
	if sink.Playing() {
		t.Error("sink should be idle after Flush")
	}
}

func TestMockSink_ResamplesToConfigRate(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	ctx := context.Background()

	_ = sink.Write(ctx, AudioChunk{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1})
	_ = sink.Flush(ctx)

	if got := len(sink.Utterances()[0]); got != 2400 {
		t.Errorf("resampled length = %d, want 2400", got)
	}
}

func TestMockSink_ClearInterruptsHeldFlush(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil, HoldPlayback())
	ctx := context.Background()

	_ = sink.Write(ctx, AudioChunk{Samples: []int16{1}, SampleRate: 24000, Channels: 1})

	errc := make(chan error, 1)
	go func() { errc <- sink.Flush(ctx) }()

	select {
	case err := <-errc:
		t.Fatalf("held Flush returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	_ = sink.Clear()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrCleared) {
			t.Errorf("Flush = %v, want ErrCleared", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Flush did not return after Clear")
	}
	if sink.Clears() != 1 || len(sink.Utterances()) != 0 {
		t.Errorf("clears=%d utterances=%d", sink.Clears(), len(sink.Utterances()))
	}
}

func TestMockSink_ReleaseCompletesHeldFlush(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil, HoldPlayback())
	ctx := context.Background()

	_ = sink.Write(ctx, AudioChunk{Samples: []int16{7}, SampleRate: 24000, Channels: 1})
	errc := make(chan error, 1)
	go func() { errc <- sink.Flush(ctx) }()

	time.Sleep(10 * time.Millisecond)
	sink.Release()

	if err := <-errc; err != nil {
		t.Fatalf("Flush after Release = %v", err)
	}
	if len(sink.Utterances()) != 1 || sink.Flushes() != 1 {
		t.Errorf("utterances=%d flushes=%d", len(sink.Utterances()), sink.Flushes())
	}
}

func TestMockSink_ClearWhenIdle(t *testing.T) {
	sink := NewMockSink(mockConfig(), nil)
	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	if sink.Clears() != 0 {
		t.Errorf("idle Clear counted: %d", sink.Clears())
	}
	if err := sink.Flush(context.Background()); err != nil {
		t.Errorf("idle Flush = %v", err)
	}
}

func TestChunk(t *testing.T) {
	c := ChunkFromBytes([]byte{0x01, 0x00, 0xFF, 0xFF}, 24000, 1)
	if diff := cmp.Diff([]int16{1, -1}, c.Samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}

	c = AudioChunk{Samples: make([]int16, 480), SampleRate: 24000, Channels: 1}
	if c.Duration() != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", c.Duration())
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.BufferSize() != 480 || cfg.BufferBytes() != 960 {
		t.Errorf("BufferSize=%d BufferBytes=%d", cfg.BufferSize(), cfg.BufferBytes())
	}

	cfg.PlaybackDevice = "plughw:1,0"
	want := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", "24000", "-c", "1", "-D", "plughw:1,0"}
	if diff := cmp.Diff(want, cfg.alsaArgs(cfg.PlaybackDevice)); diff != "" {
		t.Errorf("alsaArgs mismatch (-want +got):\n%s", diff)
	}

	cfg.Backend = "pulse"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestFactory(t *testing.T) {
	sink, err := NewSink(mockConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(*MockSink); !ok {
		t.Errorf("NewSink returned %T", sink)
	}
	src, err := NewSource(DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*ExecSource); !ok {
		t.Errorf("NewSource returned %T", src)
	}
}
