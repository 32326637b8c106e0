package frame

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os/exec"
	"time"
)

// h264Decoder turns Annex-B H264 into JPEG stills by piping through ffmpeg.
type h264Decoder struct {
	quality int
	timeout time.Duration
}

func newH264Decoder(quality int) *h264Decoder {
	// ffmpeg's mjpeg q scale runs 2 (best) to 31 (worst).
	q := 31 - quality*29/100
	if q < 2 {
		q = 2
	}
	return &h264Decoder{quality: q, timeout: 500 * time.Millisecond}
}

// Decode decodes a group of pictures that starts at a keyframe and returns
// the last picture as JPEG together with its dimensions.
func (d *h264Decoder) Decode(ctx context.Context, gop []byte) ([]byte, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.quality),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(gop)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil && stdout.Len() == 0 {
		return nil, 0, 0, fmt.Errorf("frame: ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	still := lastJPEG(stdout.Bytes())
	if still == nil {
		return nil, 0, 0, ErrEmptyFrame
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(still))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("frame: decoded jpeg: %w", err)
	}
	return still, cfg.Width, cfg.Height, nil
}

// lastJPEG returns the final image of an MJPEG stream.
func lastJPEG(stream []byte) []byte {
	soi := []byte{0xFF, 0xD8, 0xFF}
	start := bytes.LastIndex(stream, soi)
	if start < 0 {
		return nil
	}
	out := stream[start:]
	if len(out) < 4 || !bytes.HasSuffix(bytes.TrimRight(out, "\x00"), []byte{0xFF, 0xD9}) {
		return nil
	}
	cp := make([]byte, len(out))
	copy(cp, out)
	return cp
}
