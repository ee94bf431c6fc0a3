package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/go-photoanalyzer/internal/log"
	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
	"github.com/teslashibe/go-photoanalyzer/pkg/inference"
	"github.com/teslashibe/go-photoanalyzer/pkg/pipeline"
	"github.com/teslashibe/go-photoanalyzer/pkg/web"
)

// snapshotTimeout bounds a single HTTP snapshot fetch.
const snapshotTimeout = 10 * time.Second

// CameraSource is a live capture device that must be released on shutdown.
type CameraSource interface {
	capture.Source
	Close() error
}

// CameraOpener opens the capture device named by device.
type CameraOpener func(device string) (CameraSource, error)

// DetectionStream is a detection transport owned by the app.
type DetectionStream interface {
	detection.Stream
	Close() error
	Stats() detection.Stats
}

// Option customizes how the App builds its collaborators.
type Option func(*App)

// WithCamera sets the opener used for CameraDevice. Without it a configured
// camera device is an initialization error.
func WithCamera(open CameraOpener) Option {
	return func(a *App) { a.openCamera = open }
}

// WithProvider replaces the inference provider built from config.
func WithProvider(p inference.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithDetectionStream replaces the detection transport built from config.
func WithDetectionStream(s DetectionStream) Option {
	return func(a *App) { a.stream = s }
}

// WithTerminal sets where the gallery prompt reads and writes.
func WithTerminal(in io.Reader, out io.Writer) Option {
	return func(a *App) { a.in, a.out = in, out }
}

// App is the photo analyzer application. It owns every collaborator and
// their lifecycle.
type App struct {
	config Config
	logger *slog.Logger

	openCamera CameraOpener
	in         io.Reader
	out        io.Writer

	camera   CameraSource
	source   *capture.Router
	provider inference.Provider
	analyzer *inference.Analyzer
	stream   DetectionStream
	orch     *pipeline.Orchestrator
	server   *web.Server
}

// New creates the application with the given configuration.
func New(cfg Config, opts ...Option) (*App, error) {
	cfg.LoadEnvConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		logger: log.With("component", "analyzer"),
		in:     os.Stdin,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init builds all collaborators. It must be called before Run.
func (a *App) Init() error {
	if err := a.initSources(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := a.initInference(); err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	a.initDetection()
	if err := a.initPipeline(); err != nil {
		return err
	}
	a.initWeb()
	return nil
}

func (a *App) initSources() error {
	a.source = &capture.Router{}
	logger := log.L()

	switch {
	case a.config.SnapshotURL != "":
		a.source.Live = capture.NewSnapshot(a.config.SnapshotURL, snapshotTimeout, logger)
		a.logger.Info("live source: snapshot", "url", a.config.SnapshotURL)
	case a.config.CameraDevice != "":
		if a.openCamera == nil {
			return errors.New("no camera backend available for device " + a.config.CameraDevice)
		}
		cam, err := a.openCamera(a.config.CameraDevice)
		if err != nil {
			return err
		}
		a.camera = cam
		a.source.Live = cam
		a.logger.Info("live source: camera", "device", a.config.CameraDevice)
	}

	if a.config.GalleryDir != "" {
		var chooser capture.Chooser = capture.LatestChooser{}
		if a.config.Pick == PickPrompt {
			chooser = capture.NewPromptChooser(a.in, a.out)
		}
		a.source.Stored = capture.NewGallery(a.config.GalleryDir, chooser, logger)
		a.logger.Info("stored source: gallery", "dir", a.config.GalleryDir, "pick", a.config.Pick)
	}
	return nil
}

func (a *App) initInference() error {
	if a.provider == nil {
		opts := []inference.Option{
			inference.WithAPIKey(a.config.APIKey()),
			inference.WithLogger(log.L()),
		}
		if a.config.BaseURL != "" {
			opts = append(opts, inference.WithBaseURL(a.config.BaseURL))
		}
		if a.config.Model != "" {
			opts = append(opts, inference.WithVisionModel(a.config.Model))
		}
		p, err := inference.New(a.config.Provider, opts...)
		if err != nil {
			return err
		}
		a.provider = p
	}
	a.analyzer = inference.NewAnalyzer(a.provider, a.config.Prompt)
	a.logger.Info("analysis provider ready", "provider", a.provider.Name())
	return nil
}

func (a *App) initDetection() {
	if a.stream != nil {
		return
	}
	opts := []detection.Option{
		detection.WithToken(a.config.DetectToken),
		detection.WithLogger(log.L()),
	}
	switch {
	case a.config.SerialPort != "":
		opts = append(opts, detection.WithBaudRate(a.config.BaudRate))
		a.stream = detection.NewSerial(a.config.SerialPort, opts...)
		a.logger.Info("detection stream: serial", "port", a.config.SerialPort, "baud", a.config.BaudRate)
	case a.config.DetectURL != "":
		a.stream = detection.NewWebSocket(a.config.DetectURL, opts...)
		a.logger.Info("detection stream: websocket", "url", a.config.DetectURL)
	default:
		a.logger.Info("no detection stream configured, manual triggers only")
	}
}

func (a *App) initPipeline() error {
	policy, err := pipeline.ParseBusyPolicy(a.config.Policy)
	if err != nil {
		return err
	}

	// Detection-triggered runs use the live source when there is one.
	mode := capture.ModeLive
	if a.source.Live == nil {
		mode = capture.ModeStored
	}

	var stream detection.Stream
	if a.stream != nil {
		stream = a.stream
	}
	orch, err := pipeline.New(a.source, a.analyzer, stream,
		pipeline.WithBusyPolicy(policy),
		pipeline.WithDetectionMode(mode),
		pipeline.WithResubscribeInterval(a.config.ResubscribeInterval),
		pipeline.WithRunTimeout(a.config.RunTimeout),
		pipeline.WithLogger(log.L()),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initWeb() {
	opts := []web.Option{web.WithLogger(log.L())}
	if a.stream != nil {
		opts = append(opts, web.WithDetectionStats(a.stream.Stats))
	}
	a.server = web.NewServer(fmt.Sprintf(":%d", a.config.Port), a.orch, a.config.StaticDir, opts...)
}

// Pipeline returns the orchestrator. Nil before Init.
func (a *App) Pipeline() *pipeline.Orchestrator {
	return a.orch
}

// Server returns the web server. Nil before Init.
func (a *App) Server() *web.Server {
	return a.server
}

// Run starts the orchestrator and serves the web surface until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.orch == nil {
		return errors.New("analyzer: Init must be called before Run")
	}

	if err := a.orch.Start(ctx); err != nil {
		// Manual triggers keep working without the detection stream.
		a.logger.Warn("detection stream unavailable", "error", err)
	}

	a.logger.Info("photo analyzer running",
		"port", a.config.Port,
		"live", a.source.Live != nil,
		"stored", a.source.Stored != nil,
		"detection", a.stream != nil)

	return a.server.Run(ctx)
}

// Serve runs the app and always shuts it down afterwards, including when
// Run fails.
func (a *App) Serve(ctx context.Context) error {
	defer a.Shutdown()
	return a.Run(ctx)
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() {
	a.logger.Info("shutting down")

	if a.orch != nil {
		a.orch.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.logger.Warn("web shutdown", "error", err)
		}
	}
	if a.stream != nil {
		a.stream.Close()
	}
	if a.camera != nil {
		a.camera.Close()
	}
	if a.provider != nil {
		a.provider.Close()
	}
}
