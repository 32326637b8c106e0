package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/location"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	doc := `
log_level: debug
frame:
  backend: file
  image_path: testdata/street.jpg
novelty:
  debounce_window: 3s
proximity:
  threshold: 2.5
  detail: true
command:
  triggers:
    where am i: location
engine:
  gesture:
    window: 250ms
location:
  position: static
  static:
    latitude: 45.52
    longitude: -122.68
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	want := Default()
	want.LogLevel = "debug"
	want.Frame.Backend = frame.BackendFile
	want.Frame.ImagePath = "testdata/street.jpg"
	want.Novelty.DebounceWindow = 3 * time.Second
	want.Proximity.Threshold = 2.5
	want.Proximity.Detail = true
	want.Command.Triggers = map[string]command.Command{
		"location":   command.Location,
		"where am i": command.Location,
	}
	want.Engine.Gesture.Window = 250 * time.Millisecond
	want.Location.Position = location.PositionStatic
	want.Location.Static = location.StaticConfig{Latitude: 45.52, Longitude: -122.68}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	if err := os.WriteFile(unknown, []byte("novelty:\n  debounce: 3s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	badDuration := filepath.Join(dir, "duration.yaml")
	if err := os.WriteFile(badDuration, []byte("engine:\n  camera_retry: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"missing file", filepath.Join(dir, "nope.yaml"), true},
		{"unknown key", unknown, true},
		{"bad duration", badDuration, true},
		{"empty file", empty, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.path)
			if (err != nil) != tc.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:      "warn",
		EnvPort:          "9090",
		EnvOllamaHost:    "gpu-box:11434",
		EnvOpenAIKey:     "sk-test",
		EnvElevenLabsKey: "el-test",
		EnvGeocoderKey:   "geo-test",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.LogLevel != "warn" || cfg.Web.Port != "9090" {
		t.Errorf("log level %q, port %q", cfg.LogLevel, cfg.Web.Port)
	}
	if cfg.Detection.OllamaURL != "http://gpu-box:11434" {
		t.Errorf("ollama url = %q", cfg.Detection.OllamaURL)
	}
	if cfg.TTS.OpenAIKey != "sk-test" || cfg.TTS.ElevenLabsKey != "el-test" {
		t.Errorf("tts keys = %q %q", cfg.TTS.OpenAIKey, cfg.TTS.ElevenLabsKey)
	}
	if cfg.Location.APIKey != "geo-test" {
		t.Errorf("geocoder key = %q", cfg.Location.APIKey)
	}

	untouched := Default()
	untouched.ApplyEnv(func(string) string { return "" })
	if diff := cmp.Diff(Default(), untouched); diff != "" {
		t.Errorf("empty env changed config (-want +got):\n%s", diff)
	}
}

func TestOllamaURL(t *testing.T) {
	tests := map[string]string{
		"localhost:11434":        "http://localhost:11434",
		"https://ollama.lan:443": "https://ollama.lan:443",
		"http://127.0.0.1:11434": "http://127.0.0.1:11434",
	}
	for in, want := range tests {
		if got := ollamaURL(in); got != want {
			t.Errorf("ollamaURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	if err := os.WriteFile(path, []byte("web:\n  port: \"7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvPort, "")

	cfg, err := FromEnv("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != "7000" {
		t.Errorf("port = %q, want the file's 7000", cfg.Web.Port)
	}

	t.Setenv(EnvPort, "7100")
	cfg, err = FromEnv("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != "7100" {
		t.Errorf("port = %q, want the env override 7100", cfg.Web.Port)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Detection.Backend = detection.Backend("darknet")
	cfg.Proximity.Threshold = 0
	cfg.Web.Port = ""
	cfg.Location.Geocoder = location.GeocoderOpenCage

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"detection:", "proximity:", "web:", "location:"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
