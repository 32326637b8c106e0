package engine

import (
	"context"
	"errors"

	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/proximity"
)

// work serves frame requests from the loop, one at a time.
func (e *Engine) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.next:
		}

		r := e.capture(ctx)
		if errors.Is(r.cameraErr, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.post(ctx, r); err != nil {
			return err
		}
	}
}

// capture opens the camera if needed, reads one frame, detects objects and
// assesses the best detection of each label.
func (e *Engine) capture(ctx context.Context) frameResult {
	if !e.Camera.Ready() {
		if err := e.Camera.Open(ctx); err != nil {
			return frameResult{generation: e.Camera.Generation(), cameraErr: err}
		}
	}

	gen := e.Camera.Generation()
	f, err := e.Camera.Next(ctx)
	if err != nil {
		return frameResult{generation: gen, cameraErr: err}
	}
	r := frameResult{generation: f.Generation, frame: f}

	dctx, cancel := context.WithTimeout(ctx, e.cfg.DetectTimeout)
	defer cancel()

	dets, err := e.Detector.Detect(dctx, f)
	if err != nil {
		r.detectErr = err
		return r
	}
	r.detections = dets

	best := make(map[string]detection.Detection, len(dets))
	for _, d := range dets {
		if cur, ok := best[d.Label]; !ok || d.Score > cur.Score {
			best[d.Label] = d
		}
	}
	r.assessed = make(map[string]proximity.Assessment, len(best))
	for label, d := range best {
		r.assessed[label] = e.Evaluator.Evaluate(dctx, d, f)
	}
	return r
}
