// Detect Test - run the detector (and depth) on one image and print what
// the narrator would say about it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-narrator/internal/config"
	"github.com/teslashibe/go-narrator/internal/httpc"
	"github.com/teslashibe/go-narrator/internal/log"
	"github.com/teslashibe/go-narrator/pkg/depth"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/proximity"
)

func main() {
	path := flag.String("config", "", "YAML config file (overrides NARRATOR_CONFIG)")
	image := flag.String("image", "", "Image to analyze (required)")
	backend := flag.String("detector", "", "Detector backend: yolo or ollama")
	withDepth := flag.Bool("depth", false, "Estimate distances with MiDaS")
	detail := flag.Bool("detail", true, "Print distances in the phrases")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *image == "" {
		fmt.Fprintln(os.Stderr, "usage: detect-test -image street.jpg [-detector ollama] [-depth]")
		os.Exit(2)
	}

	cfg, err := config.FromEnv(*path)
	if err != nil {
		fatal("config", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *backend != "" {
		cfg.Detection.Backend = detection.Backend(*backend)
	}
	if *withDepth {
		cfg.Depth.Enabled = true
	}
	cfg.Proximity.Detail = *detail
	log.Init(cfg.LogLevel)
	logger := log.Component("detect-test")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	still, err := frame.OpenStill(*image, cfg.Frame, nil)
	if err != nil {
		fatal("image", err)
	}
	defer still.Close()
	f, err := still.Next(ctx)
	if err != nil {
		fatal("image", err)
	}
	fmt.Printf("🖼️  %s (%dx%d)\n", *image, f.Width, f.Height)

	det, err := detection.New(cfg.Detection, httpc.Client, logger)
	if err != nil {
		fatal("detector", err)
	}
	defer det.Close()

	var sampler depth.Sampler
	if cfg.Depth.Enabled {
		est, err := depth.NewMiDaS(cfg.Depth, logger)
		if err != nil {
			fatal("depth", err)
		}
		cs := depth.NewCachedSampler(est)
		defer cs.Close()
		sampler = cs
	}

	start := time.Now()
	dets, err := det.Detect(ctx, f)
	if err != nil {
		fatal("detect", err)
	}
	fmt.Printf("🔍 %d detections in %v (%s)\n", len(dets), time.Since(start).Round(time.Millisecond), cfg.Detection.Backend)
	if len(dets) == 0 {
		fmt.Println("   " + cfg.Proximity.NothingPhrase)
		return
	}

	eval := proximity.New(cfg.Proximity, sampler)
	assessed := make([]proximity.Assessment, 0, len(dets))
	for _, d := range dets {
		fmt.Printf("   %-16s %.2f  [%.0f,%.0f %.0fx%.0f]\n", d.Label, d.Score, d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height)
		assessed = append(assessed, eval.Evaluate(ctx, d, f))
	}

	proximity.Rank(assessed)
	fmt.Println("🗣️  Phrases (most urgent first):")
	for _, a := range assessed {
		marker := "  "
		if a.Urgent {
			marker = "⚠️"
		}
		fmt.Printf("   %s %s\n", marker, a.Phrase)
		if a.Err != nil && !a.IsUnavailable() {
			fmt.Printf("      depth: %v\n", a.Err)
		}
	}
}

func fatal(stage string, err error) {
	fmt.Fprintf(os.Stderr, "❌ %s: %v\n", stage, err)
	os.Exit(1)
}
