// Package web serves the photo analyzer's presentation surface: a small REST
// API over the pipeline plus websocket feeds of state transitions and
// captured images.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
	"github.com/teslashibe/go-photoanalyzer/pkg/hub"
	"github.com/teslashibe/go-photoanalyzer/pkg/pipeline"
)

// Pipeline is the orchestrator surface the server needs.
type Pipeline interface {
	State() pipeline.State
	Watch(ctx context.Context) <-chan pipeline.State
	TriggerManualCapture(mode capture.Mode) (pipeline.Outcome, error)
	Stats() pipeline.Stats
}

// StatsFunc reports detection stream statistics.
type StatsFunc func() detection.Stats

// Server is the web dashboard server.
type Server struct {
	app    *fiber.App
	addr   string
	pipe   Pipeline
	logger *slog.Logger

	// Hubs for websocket broadcast
	stateHub *hub.Hub
	imageHub *hub.Hub

	detectionStats StatsFunc
	started        time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDetectionStats exposes detection stream statistics on /api/stats.
func WithDetectionStats(f StatsFunc) Option {
	return func(s *Server) { s.detectionStats = f }
}

// NewServer creates a server for p listening on addr (e.g. ":8080").
// staticDir, if non-empty, is served at "/".
func NewServer(addr string, p Pipeline, staticDir string, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		pipe:    p,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.stateHub = hub.New("state", hub.WithLogger(s.logger), hub.WithRetainLast())
	s.imageHub = hub.New("image", hub.WithLogger(s.logger), hub.WithRetainLast())

	app := fiber.New(fiber.Config{
		AppName:               "Photo Analyzer",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if staticDir != "" {
		app.Static("/", staticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/state", s.handleState)
	api.Get("/image", s.handleImage)
	api.Get("/stats", s.handleStats)
	api.Post("/capture/:mode", s.handleCapture)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/image", websocket.New(s.handleImageWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs, the state bridge and the listener, and blocks until
// ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go s.stateHub.Run(ctx)
	go s.imageHub.Run(ctx)
	go s.bridge(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// bridge forwards every pipeline transition to the state hub, and each newly
// captured image to the image hub. It waits for queue room rather than
// dropping a transition.
func (s *Server) bridge(ctx context.Context) {
	var lastRun string
	for st := range s.pipe.Watch(ctx) {
		if err := s.stateHub.SendJSON(ctx, NewStateView(st)); err != nil {
			if ctx.Err() != nil || errors.Is(err, hub.ErrStopped) {
				return
			}
			s.logger.Warn("encode state", "error", err)
		}
		if newImage(lastRun, st) {
			lastRun = st.RunID
			if err := s.imageHub.Send(ctx, hub.Message{Binary: true, Data: st.Image}); err != nil {
				return
			}
		}
	}
}

// newImage reports whether st carries the first image of a run.
func newImage(lastRun string, st pipeline.State) bool {
	return st.HasImage() && st.RunID != lastRun
}
