// Package web serves the narrator's dashboard API: status, recent logs and
// the user gestures (tap, voice toggle, speech toggle, camera flip, locate).
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-narrator/pkg/engine"
	"github.com/teslashibe/go-narrator/pkg/hub"
)

// Narrator is the engine surface the dashboard drives.
type Narrator interface {
	Status() engine.Status
	Tap()
	ToggleVoice(ctx context.Context) error
	ToggleSpeech(ctx context.Context) error
	FlipCamera(ctx context.Context) error
	Locate(ctx context.Context) error
}

// PositionSetter accepts a position entered on the dashboard.
type PositionSetter interface {
	Set(lat, lon float64)
}

// Config configures the dashboard server.
type Config struct {
	Port string `yaml:"port" json:"port"`

	// StaticDir, when set, is served at /.
	StaticDir string `yaml:"static_dir" json:"static_dir"`

	// LogBuffer is how many log entries GET /api/logs returns.
	LogBuffer int `yaml:"log_buffer" json:"log_buffer"`
}

// DefaultConfig listens on 8181 and keeps 500 log entries.
func DefaultConfig() Config {
	return Config{Port: "8181", LogBuffer: 500}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("web: port is required")
	}
	if c.LogBuffer < 1 {
		return errors.New("web: log_buffer must be positive")
	}
	return nil
}

// LogEntry is one dashboard log line.
type LogEntry struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

// Option configures a Server.
type Option func(*Server)

// WithPositionSetter lets POST /api/location carry coordinates.
func WithPositionSetter(p PositionSetter) Option {
	return func(s *Server) { s.positions = p }
}

// Server is the dashboard server.
type Server struct {
	cfg       Config
	app       *fiber.App
	narrator  Narrator
	positions PositionSetter
	logger    *slog.Logger

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub   *hub.Hub
	announceHub *hub.Hub
	logHub      *hub.Hub
}

// NewServer creates a dashboard over n.
func NewServer(cfg Config, n Narrator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	// The log hub feeds the dashboard log, so it must not log itself.
	quiet := slog.New(slog.DiscardHandler)
	s := &Server{
		cfg:         cfg,
		narrator:    n,
		logger:      logger.With("component", "web.server"),
		logs:        make([]LogEntry, 0, cfg.LogBuffer),
		statusHub:   hub.New("status", logger),
		announceHub: hub.New("announcements", logger),
		logHub:      hub.New("logs", quiet),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.statusHub.OnConnect(func() (hub.Message, bool) {
		return jsonMessage(s.narrator.Status())
	})

	app := fiber.New(fiber.Config{
		AppName:               "Narrator Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/tap", s.handleTap)
	api.Post("/voice/toggle", s.handleToggleVoice)
	api.Post("/speech/toggle", s.handleToggleSpeech)
	api.Post("/camera/flip", s.handleFlipCamera)
	api.Post("/location", s.handleLocation)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/announcements", websocket.New(s.serveHub(s.announceHub)))
	app.Get("/ws/logs", websocket.New(s.serveHub(s.logHub)))

	s.app = app
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.announceHub.Run(ctx)
	go s.logHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", fmt.Sprintf("http://localhost:%s", s.cfg.Port))
		errc <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("web: listen: %w", err)
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	}
}

// PublishStatus pushes a status snapshot to /ws/status clients.
func (s *Server) PublishStatus(st engine.Status) {
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Debug("encode status", "error", err)
	}
}

// PublishReport pushes frames with something newly relevant to
// /ws/announcements clients.
func (s *Server) PublishReport(r engine.Report) {
	if r.Stale || (len(r.Assessments) == 0 && r.Err == "") {
		return
	}
	if err := s.announceHub.BroadcastJSON(r); err != nil {
		s.logger.Debug("encode report", "error", err)
	}
}

// AddLog records an entry and pushes it to /ws/logs clients.
func (s *Server) AddLog(e LogEntry) {
	s.logsMu.Lock()
	s.logs = append(s.logs, e)
	if over := len(s.logs) - s.cfg.LogBuffer; over > 0 {
		s.logs = s.logs[over:]
	}
	s.logsMu.Unlock()

	if data, ok := jsonMessage(e); ok {
		s.logHub.Broadcast(data)
	}
}

// Logs returns a copy of the buffered entries.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}
