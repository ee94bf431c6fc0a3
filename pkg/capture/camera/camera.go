// Package camera captures live frames from a local video device using OpenCV.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"gocv.io/x/gocv"
)

// Config holds capture device settings.
type Config struct {
	// Device is a device index ("0") or a file/stream URL.
	Device string

	// Width and Height request a capture resolution. 0 keeps the device default.
	Width  int
	Height int

	// Quality is the JPEG quality 1-100.
	Quality int

	// WarmupFrames are read and discarded before the kept frame so
	// auto-exposure can settle.
	WarmupFrames int
}

// DefaultConfig returns defaults for a USB webcam.
func DefaultConfig() Config {
	return Config{
		Device:       "0",
		Width:        1280,
		Height:       720,
		Quality:      90,
		WarmupFrames: 3,
	}
}

// Validate checks if the config values are within valid ranges.
func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("camera: device is required")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("camera: quality must be between 1 and 100")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("camera: width and height must not be negative")
	}
	if c.WarmupFrames < 0 {
		return fmt.Errorf("camera: warmup frames must not be negative")
	}
	return nil
}

// Camera is a capture.Source backed by gocv.VideoCapture.
// The device is opened lazily on first capture and kept open until Close.
type Camera struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex // Protects the device
	device *gocv.VideoCapture
}

// New creates a Camera.
func New(cfg Config, logger *slog.Logger) (*Camera, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Camera{
		cfg:    cfg,
		logger: logger.With("component", "capture.camera", "device", cfg.Device),
	}, nil
}

// open opens the device if needed. Caller holds c.mu.
func (c *Camera) open() error {
	if c.device != nil {
		return nil
	}

	var device interface{} = c.cfg.Device
	if id, err := strconv.Atoi(c.cfg.Device); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s not opened", capture.ErrDeviceUnavailable, c.cfg.Device)
	}

	if c.cfg.Width > 0 && c.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	}

	c.device = vc
	c.logger.Info("camera opened")
	return nil
}

// Capture reads one frame and returns it JPEG-encoded.
func (c *Camera) Capture(ctx context.Context, mode capture.Mode) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(); err != nil {
		return nil, err
	}

	frame := gocv.NewMat()
	defer frame.Close()

	for i := 0; i <= c.cfg.WarmupFrames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("capture: camera: %w", err)
		}
		if ok := c.device.Read(&frame); !ok {
			c.closeDevice()
			return nil, fmt.Errorf("%w: cannot read frame", capture.ErrDeviceUnavailable)
		}
	}
	if frame.Empty() {
		return nil, fmt.Errorf("%w: frame is empty", capture.ErrDeviceUnavailable)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	c.logger.Debug("frame captured", "bytes", len(data), "cols", frame.Cols(), "rows", frame.Rows())
	return data, nil
}

// closeDevice releases the device. Caller holds c.mu.
func (c *Camera) closeDevice() {
	if c.device != nil {
		c.device.Close()
		c.device = nil
	}
}

// Close releases the capture device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeDevice()
	return nil
}

var _ capture.Source = (*Camera)(nil)
