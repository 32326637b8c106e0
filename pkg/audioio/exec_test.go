package audioio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// stuckPlayer returns a play command that never reads its stdin, so writes
// block once the pipe buffer is full.
func stuckPlayer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not found")
	}
	path := filepath.Join(t.TempDir(), "stuck-player")
	if err := os.WriteFile(path, []byte("#!"+sh+"\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecSink_ClearUnblocksWrite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendExec
	cfg.PlayCommand = stuckPlayer(t)
	sink := NewExecSink(cfg, nil)
	defer sink.Close()

	// Ten seconds of audio is far more than a pipe buffers.
	chunk := ChunkFromBytes(make([]byte, cfg.SampleRate*cfg.Channels*2*10), cfg.SampleRate, cfg.Channels)
	errc := make(chan error, 1)
	go func() { errc <- sink.Write(context.Background(), chunk) }()

	deadline := time.Now().Add(2 * time.Second)
	for !sink.Stats().Playing && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !sink.Stats().Playing {
		t.Fatal("playback never started")
	}

	if err := sink.Clear(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrCleared) {
			t.Errorf("Write error = %v, want ErrCleared", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write still blocked after Clear")
	}
	if got := sink.Stats().Cleared; got != 1 {
		t.Errorf("cleared = %d, want 1", got)
	}
}

func TestExecSink_WriteHonoursCancelledContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendExec
	cfg.PlayCommand = stuckPlayer(t)
	sink := NewExecSink(cfg, nil)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chunk := ChunkFromBytes(make([]byte, 64), cfg.SampleRate, cfg.Channels)
	if err := sink.Write(ctx, chunk); !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
	if sink.Stats().Playing {
		t.Error("a cancelled write should not leave playback running")
	}
}
