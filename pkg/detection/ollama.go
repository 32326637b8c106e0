package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

const visionPrompt = `List the physical objects visible in this image that matter to a blind pedestrian.
Answer with JSON only, in this exact form:
{"objects":[{"label":"chair","box":[x,y,w,h],"score":0.9}]}
box values are fractions of the image width and height (0 to 1), x,y is the top-left corner.
Use short lowercase nouns for labels. Return {"objects":[]} if nothing is visible.`

// visionObject is one entry of the model's JSON answer.
type visionObject struct {
	Label string    `json:"label"`
	Box   []float64 `json:"box"`
	Score float64   `json:"score"`
}

// VisionDetector asks a vision LLM served by Ollama to list objects.
type VisionDetector struct {
	client *api.Client
	cfg    Config
	logger *slog.Logger
}

// NewVision creates a detector that talks to the Ollama server in cfg.
func NewVision(cfg Config, httpClient *http.Client, logger *slog.Logger) (*VisionDetector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := url.Parse(cfg.OllamaURL)
	if err != nil {
		return nil, fmt.Errorf("detection: invalid ollama url: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &VisionDetector{
		client: api.NewClient(base, httpClient),
		cfg:    cfg,
		logger: logger.With("component", "detection.ollama", "model", cfg.OllamaModel),
	}, nil
}

// Detect sends a downscaled copy of the frame and maps the answer back to
// frame pixels.
func (v *VisionDetector) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	if !f.Valid() {
		return nil, ErrEmptyFrame
	}
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	payload, err := downscale(f.JPEG, v.cfg.MaxDimension)
	if err != nil {
		return nil, err
	}

	stream := false
	req := &api.ChatRequest{
		Model: v.cfg.OllamaModel,
		Messages: []api.Message{{
			Role:    "user",
			Content: visionPrompt,
			Images:  []api.ImageData{api.ImageData(payload)},
		}},
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0},
	}

	var content string
	if err := v.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	}); err != nil {
		return nil, fmt.Errorf("detection: ollama chat: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyResponse
	}

	objects, err := parseVisionObjects(content)
	if err != nil {
		return nil, err
	}
	dets := toDetections(objects, float64(f.Width), float64(f.Height), v.cfg.ConfidenceThresh)
	v.logger.Debug("objects detected", "frame", f.Seq, "count", len(dets))
	return dets, nil
}

// Close is a no-op; the HTTP client is shared.
func (v *VisionDetector) Close() error {
	return nil
}

// downscale shrinks the longest side to maxDim and re-encodes as JPEG.
func downscale(jpeg []byte, maxDim int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return nil, fmt.Errorf("detection: decode frame: %w", err)
	}
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return jpeg, nil
	}

	var resized image.Image
	if b.Dx() >= b.Dy() {
		resized = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	} else {
		resized = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("detection: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// parseVisionObjects accepts the model's JSON even when wrapped in a code
// fence or surrounded by prose.
func parseVisionObjects(raw string) ([]visionObject, error) {
	raw = strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var resp struct {
		Objects []visionObject `json:"objects"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("detection: parse model answer: %w", err)
	}
	return resp.Objects, nil
}

func toDetections(objects []visionObject, w, h, minScore float64) []Detection {
	dets := make([]Detection, 0, len(objects))
	for _, o := range objects {
		label := strings.ToLower(strings.TrimSpace(o.Label))
		if label == "" {
			continue
		}
		score := o.Score
		if score == 0 {
			score = 1
		}
		if score < minScore {
			continue
		}

		var box Rect
		if len(o.Box) == 4 {
			box = Rect{
				X:      clamp01(o.Box[0]) * w,
				Y:      clamp01(o.Box[1]) * h,
				Width:  clamp01(o.Box[2]) * w,
				Height: clamp01(o.Box[3]) * h,
			}
		} else {
			// No box: treat the object as filling the frame.
			box = Rect{Width: w, Height: h}
		}
		dets = append(dets, Detection{Label: label, BBox: box, Score: score})
	}
	return dets
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var _ Detector = (*VisionDetector)(nil)
