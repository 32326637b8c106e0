package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

func TestRect_Center(t *testing.T) {
	tests := []struct {
		name    string
		rect    Rect
		expectX float64
		expectY float64
	}{
		{
			name:    "centered box",
			rect:    Rect{X: 160, Y: 120, Width: 320, Height: 240},
			expectX: 320,
			expectY: 240,
		},
		{
			name:    "top left corner",
			rect:    Rect{X: 0, Y: 0, Width: 64, Height: 48},
			expectX: 32,
			expectY: 24,
		},
		{
			name:    "bottom right corner",
			rect:    Rect{X: 576, Y: 432, Width: 64, Height: 48},
			expectX: 608,
			expectY: 456,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.rect.Center()
			if x != tc.expectX {
				t.Errorf("Center X: got %.2f, want %.2f", x, tc.expectX)
			}
			if y != tc.expectY {
				t.Errorf("Center Y: got %.2f, want %.2f", y, tc.expectY)
			}
		})
	}
}

func TestRect_Area(t *testing.T) {
	if got := (Rect{Width: 10, Height: 20}).Area(); got != 200 {
		t.Errorf("Area = %v, want 200", got)
	}
}

func TestLabels(t *testing.T) {
	dets := []Detection{{Label: "person"}, {Label: "chair"}, {Label: "person"}}
	if diff := cmp.Diff([]string{"chair", "person"}, Labels(dets)); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterScore(t *testing.T) {
	dets := []Detection{{Label: "a", Score: 0.2}, {Label: "b", Score: 0.5}, {Label: "c", Score: 0.9}}
	got := FilterScore(dets, 0.5)
	if len(got) != 2 || got[0].Label != "b" || got[1].Label != "c" {
		t.Errorf("FilterScore = %+v", got)
	}
	if len(dets) != 3 || dets[0].Label != "a" {
		t.Error("FilterScore must not modify its input")
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{0, "person"},
		{56, "chair"},
		{79, "toothbrush"},
		{80, "object"},
		{-1, "object"},
	}
	for _, tc := range tests {
		if got := ClassName(tc.id); got != tc.want {
			t.Errorf("ClassName(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	cfg.Backend = "tflite"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg = DefaultConfig()
	cfg.Backend = BackendOllama
	cfg.OllamaModel = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing ollama model")
	}
}

func TestParseVisionObjects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"plain json", `{"objects":[{"label":"chair","box":[0.1,0.2,0.3,0.4],"score":0.8}]}`, 1, false},
		{"code fence", "```json\n{\"objects\":[{\"label\":\"door\"}]}\n```", 1, false},
		{"surrounding prose", `Sure! {"objects":[{"label":"cup"},{"label":"table"}]} Hope that helps.`, 2, false},
		{"empty list", `{"objects":[]}`, 0, false},
		{"garbage", `I cannot see anything`, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseVisionObjects(tc.raw)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if len(got) != tc.want {
				t.Errorf("got %d objects, want %d", len(got), tc.want)
			}
		})
	}
}

func TestToDetections(t *testing.T) {
	objects := []visionObject{
		{Label: " Chair ", Box: []float64{0.5, 0.5, 0.25, 0.5}, Score: 0.9},
		{Label: "lamp", Score: 0.1},
		{Label: "", Score: 1},
		{Label: "door"},
	}
	got := toDetections(objects, 640, 480, 0.5)

	want := []Detection{
		{Label: "chair", BBox: Rect{X: 320, Y: 240, Width: 160, Height: 240}, Score: 0.9},
		{Label: "door", BBox: Rect{Width: 640, Height: 480}, Score: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toDetections mismatch (-want +got):\n%s", diff)
	}
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestVisionDetector_Detect(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			t.Errorf("expected one message with one image, got %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"objects":[{"label":"person","box":[0,0,0.5,1],"score":0.95}]}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Backend = BackendOllama
	cfg.OllamaURL = srv.URL + "/api/chat"
	cfg.OllamaModel = "llava:test"
	cfg.MaxDimension = 64

	det, err := NewVision(cfg, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewVision: %v", err)
	}

	f := &frame.Frame{Seq: 1, JPEG: testJPEG(t, 200, 100), Width: 200, Height: 100}
	dets, err := det.Detect(context.Background(), f)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if gotModel != "llava:test" {
		t.Errorf("model = %q", gotModel)
	}
	want := []Detection{{Label: "person", BBox: Rect{Width: 100, Height: 100}, Score: 0.95}}
	if diff := cmp.Diff(want, dets); diff != "" {
		t.Errorf("Detect mismatch (-want +got):\n%s", diff)
	}
}

func TestVisionDetector_EmptyFrame(t *testing.T) {
	det, err := NewVision(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("NewVision: %v", err)
	}
	if _, err := det.Detect(context.Background(), &frame.Frame{}); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("got %v, want ErrEmptyFrame", err)
	}
}

func TestDownscale(t *testing.T) {
	src := testJPEG(t, 200, 100)

	small, err := downscale(src, 50)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(small))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("got %dx%d, want 50x25", cfg.Width, cfg.Height)
	}

	same, err := downscale(src, 500)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	if !bytes.Equal(same, src) {
		t.Error("images within the limit should pass through unchanged")
	}
}

func TestMock_Script(t *testing.T) {
	boom := errors.New("boom")
	m := NewMock(
		MockResult{Detections: []Detection{{Label: "chair"}}},
		MockResult{Err: boom},
	)
	ctx := context.Background()

	dets, err := m.Detect(ctx, &frame.Frame{Seq: 1})
	if err != nil || len(dets) != 1 {
		t.Fatalf("first: dets=%v err=%v", dets, err)
	}
	if _, err := m.Detect(ctx, &frame.Frame{Seq: 2}); !errors.Is(err, boom) {
		t.Fatalf("second: got %v", err)
	}
	dets, err = m.Detect(ctx, &frame.Frame{Seq: 3})
	if err != nil || dets != nil {
		t.Fatalf("exhausted script should return nothing, got %v %v", dets, err)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3}, m.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}
