package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/frame"
)

// YOLODetector runs YOLOv8 through OpenCV's DNN module.
type YOLODetector struct {
	net       gocv.Net
	cfg       Config
	logger    *slog.Logger
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the ONNX model named in cfg.
func NewYOLO(cfg Config, logger *slog.Logger) (*YOLODetector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		cfg:       cfg,
		logger:    logger.With("component", "detection.yolo"),
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Detect finds objects in the frame. Boxes are returned in frame pixels.
func (d *YOLODetector) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	if !f.Valid() {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(f.JPEG, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode frame %d: %w", f.Seq, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.parse(output, float64(img.Cols()), float64(img.Rows()))
	if err != nil {
		return nil, err
	}
	if len(dets) > 0 {
		d.logger.Debug("objects detected", "frame", f.Seq, "count", len(dets), "labels", Labels(dets))
	}
	return dets, nil
}

// parse decodes the YOLOv8 output tensor.
// Shape: [1, 84, 8400] where 84 = 4 box values (cx, cy, w, h) + 80 class scores.
func (d *YOLODetector) parse(output gocv.Mat, imgW, imgH float64) ([]Detection, error) {
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("detection: unexpected output shape %v", sizes)
	}
	attrs, anchors := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("detection: read output: %w", err)
	}

	sx := imgW / float64(d.cfg.InputWidth)
	sy := imgH / float64(d.cfg.InputHeight)
	thresh := float32(d.cfg.ConfidenceThresh)

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < anchors; i++ {
		best, class := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := data[c*anchors+i]; s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < thresh {
			continue
		}

		cx := float64(data[0*anchors+i])
		cy := float64(data[1*anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, best)
		classes = append(classes, class)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, thresh, float32(d.cfg.NMSThresh))
	dets := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		b := clampRect(boxes[idx], int(imgW), int(imgH))
		dets = append(dets, Detection{
			Label: ClassName(classes[idx]),
			BBox: Rect{
				X:      float64(b.Min.X),
				Y:      float64(b.Min.Y),
				Width:  float64(b.Dx()),
				Height: float64(b.Dy()),
			},
			Score: float64(scores[idx]),
		})
	}
	return dets, nil
}

func clampRect(r image.Rectangle, w, h int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, w, h))
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

var _ Detector = (*YOLODetector)(nil)
