// Narrator - hands-free scene narration for blind and low-vision users.
// Reads the camera, announces what is new and near, and answers "location".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-narrator/internal/config"
	"github.com/teslashibe/go-narrator/internal/httpc"
	"github.com/teslashibe/go-narrator/internal/log"
	"github.com/teslashibe/go-narrator/pkg/audioio"
	"github.com/teslashibe/go-narrator/pkg/command"
	"github.com/teslashibe/go-narrator/pkg/depth"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/engine"
	"github.com/teslashibe/go-narrator/pkg/frame"
	"github.com/teslashibe/go-narrator/pkg/location"
	"github.com/teslashibe/go-narrator/pkg/novelty"
	"github.com/teslashibe/go-narrator/pkg/preference"
	"github.com/teslashibe/go-narrator/pkg/proximity"
	"github.com/teslashibe/go-narrator/pkg/recognizer"
	"github.com/teslashibe/go-narrator/pkg/speech"
	"github.com/teslashibe/go-narrator/pkg/tts"
	"github.com/teslashibe/go-narrator/pkg/web"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("narrator stopped", "error", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies flag overrides on top of it.
func parseFlags() (config.Config, error) {
	path := flag.String("config", "", "YAML config file (overrides NARRATOR_CONFIG)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", "", "Dashboard port")
	image := flag.String("image", "", "Replay this image instead of a camera")
	detector := flag.String("detector", "", "Detector backend: yolo or ollama")
	ttsBackend := flag.String("tts", "", "TTS provider: openai, elevenlabs, mock, none")
	noVoice := flag.Bool("no-voice", false, "Disable voice commands")
	detail := flag.Bool("detail", false, "Append the distance to each announcement")
	flag.Parse()

	cfg, err := config.FromEnv(*path)
	if err != nil {
		return cfg, err
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *port != "" {
		cfg.Web.Port = *port
	}
	if *image != "" {
		cfg.Frame.Backend = frame.BackendFile
		cfg.Frame.ImagePath = *image
	}
	if *detector != "" {
		cfg.Detection.Backend = detection.Backend(*detector)
	}
	if *ttsBackend != "" {
		cfg.TTS.Backend = tts.Backend(*ttsBackend)
	}
	if *noVoice {
		cfg.Recognizer.Backend = recognizer.BackendNone
	}
	if *detail {
		cfg.Proximity.Detail = true
	}
	return cfg, cfg.Validate()
}

// boundNarrator lets the dashboard exist before the engine it drives, so the
// engine's logger can already mirror into the dashboard log.
type boundNarrator struct {
	*engine.Engine
}

var _ web.Narrator = (*boundNarrator)(nil)

func run(ctx context.Context, cfg config.Config) (err error) {
	narrator := &boundNarrator{}
	var serverOpts []web.Option

	// The position source decides whether the dashboard may set coordinates,
	// so it is built before the server.
	positions, err := location.NewPositionSource(cfg.Location, nil)
	if err != nil {
		return err
	}
	if setter, ok := positions.(web.PositionSetter); ok {
		serverOpts = append(serverOpts, web.WithPositionSetter(setter))
	}

	// The dashboard logs straight to stdout; everything else is teed into it.
	srv := web.NewServer(cfg.Web, narrator, log.New(os.Stdout, cfg.LogLevel), serverOpts...)
	log.Init(cfg.LogLevel, srv.LogHandler)
	logger := log.L()
	logger.Info("starting narrator",
		"frame", cfg.Frame.Backend,
		"detector", cfg.Detection.Backend,
		"depth", cfg.Depth.Enabled,
		"tts", cfg.TTS.Backend,
		"recognizer", cfg.Recognizer.Backend,
	)

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	prefs, err := preference.Open(preference.NewJSONStore(cfg.PreferencesPath), logger)
	if err != nil {
		return err
	}
	closers = append(closers, prefs.Close)
	facing, err := frame.ParseFacing(string(prefs.CameraMode()))
	if err != nil {
		facing = frame.FacingEnvironment
	}

	opener, err := frame.NewOpener(cfg.Frame, clock.New(), logger)
	if err != nil {
		return err
	}
	camera := frame.NewSwitcher(opener, facing, logger)

	det, err := detection.New(cfg.Detection, httpc.Client, logger)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	closers = append(closers, det.Close)

	var sampler depth.Sampler
	if cfg.Depth.Enabled {
		est, err := depth.NewMiDaS(cfg.Depth, logger)
		if err != nil {
			logger.Warn("depth unavailable, distances will be unknown", "error", err)
		} else {
			cs := depth.NewCachedSampler(est)
			closers = append(closers, cs.Close)
			sampler = cs
		}
	}

	output, sink, err := buildOutput(cfg, logger)
	if err != nil {
		return err
	}
	if output != nil {
		closers = append(closers, sink.Close, output.Close)
	}
	arbiter := speech.NewArbiter(output, logger)

	rec, err := buildRecognizer(cfg, logger)
	if err != nil {
		logger.Warn("voice commands unavailable", "error", err)
	}
	if rec != nil {
		closers = append(closers, rec.Close)
	}

	geocoder, err := location.NewGeocoder(cfg.Location, httpc.NewClient(httpc.GeocodeTimeout), logger)
	if err != nil {
		return err
	}
	locator := location.NewService(cfg.Location, positions, geocoder, logger)

	coordOpts := []command.Option{
		command.WithLogger(logger),
		command.WithFlow(command.Location, command.FlowFunc(locator.Run)),
	}
	if rec != nil {
		coordOpts = append(coordOpts, command.WithRecognizer(rec))
	}
	coord, err := command.New(cfg.Command, arbiter, coordOpts...)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg.Engine, engine.Components{
		Camera:      camera,
		Detector:    det,
		Tracker:     novelty.New(cfg.Novelty),
		Evaluator:   proximity.New(cfg.Proximity, sampler),
		Arbiter:     arbiter,
		Output:      output,
		Coordinator: coord,
		Recognizer:  rec,
		Preferences: prefs,
	}, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	narrator.Engine = eng
	eng.OnStatus(srv.PublishStatus)
	eng.OnFrame(srv.PublishReport)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if nmea, ok := positions.(*location.NMEASource); ok {
		g.Go(func() error {
			// A GPS failure only disables location read-back.
			if err := nmea.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Warn("gps stopped", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("narrator stopped")
	return nil
}

// buildOutput returns nil when speech is disabled, leaving the narrator
// visual-only.
func buildOutput(cfg config.Config, logger *slog.Logger) (speech.Output, audioio.Sink, error) {
	provider, err := tts.New(cfg.TTS, httpc.Client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("tts: %w", err)
	}
	if provider == nil {
		logger.Info("speech disabled")
		return nil, nil, nil
	}
	sink, err := audioio.NewSink(cfg.Audio, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("audio: %w", err)
	}
	return speech.NewTTSOutput(provider, sink, logger), sink, nil
}

func buildRecognizer(cfg config.Config, logger *slog.Logger) (recognizer.Recognizer, error) {
	var source audioio.Source
	if cfg.Recognizer.Backend == recognizer.BackendVosk {
		src, err := audioio.NewSource(cfg.Audio, logger)
		if err != nil {
			return nil, err
		}
		source = src
	}
	rec, err := recognizer.New(cfg.Recognizer, source, logger)
	if err != nil && source != nil {
		_ = source.Close()
	}
	return rec, err
}
