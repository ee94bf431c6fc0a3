// Photo analyzer - capture a photo from a camera or gallery, on demand or
// when an ESP32 reports a detection, and describe it with a vision model.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-photoanalyzer/internal/config"
	plog "github.com/teslashibe/go-photoanalyzer/internal/log"
	"github.com/teslashibe/go-photoanalyzer/pkg/analyzer"
	"github.com/teslashibe/go-photoanalyzer/pkg/capture/camera"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("⚠️  .env: %v", err)
	}

	cfg := parseFlags()
	cfg.LoadEnvConfig()

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	plog.Init(level)

	app, err := analyzer.New(cfg, analyzer.WithCamera(openCamera))
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	if err := app.Init(); err != nil {
		app.Shutdown()
		log.Fatalf("❌ Initialization failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = app.Serve(ctx)
	cancel()
	if err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// openCamera opens an OpenCV capture device.
func openCamera(device string) (analyzer.CameraSource, error) {
	cfg := camera.DefaultConfig()
	cfg.Device = device
	cam, err := camera.New(cfg, plog.L())
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// parseFlags parses command line flags and returns configuration.
// A -config file supplies the flag defaults; environment variables fill
// whatever is still unset afterwards.
func parseFlags() analyzer.Config {
	cfg := analyzer.DefaultConfig()
	if path := configPath(os.Args[1:]); path != "" {
		fileCfg, err := analyzer.LoadFile(path)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		cfg = fileCfg
	}

	flag.String("config", "", "YAML config file")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Web server port")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory served at / (optional)")

	flag.StringVar(&cfg.CameraDevice, "camera", cfg.CameraDevice, "Camera device index or stream URL (overrides CAMERA_DEVICE)")
	flag.StringVar(&cfg.SnapshotURL, "snapshot-url", cfg.SnapshotURL, "HTTP JPEG snapshot URL, e.g. an ESP32-CAM /capture (overrides SNAPSHOT_URL)")
	flag.StringVar(&cfg.GalleryDir, "gallery", cfg.GalleryDir, "Directory of stored photos (overrides GALLERY_DIR)")
	flag.StringVar(&cfg.Pick, "pick", cfg.Pick, "Gallery pick strategy: latest, prompt")

	flag.StringVar(&cfg.SerialPort, "serial", cfg.SerialPort, "Serial port for detection events (overrides DETECT_SERIAL)")
	flag.IntVar(&cfg.BaudRate, "baud", cfg.BaudRate, "Serial baud rate")
	flag.StringVar(&cfg.DetectURL, "detect-url", cfg.DetectURL, "WebSocket URL for detection events (overrides DETECT_URL)")
	flag.StringVar(&cfg.DetectToken, "detect-token", cfg.DetectToken, "Line token that signals a detection")

	flag.StringVar(&cfg.Policy, "policy", cfg.Policy, "Trigger policy while busy: queue, drop")
	flag.DurationVar(&cfg.ResubscribeInterval, "resubscribe", cfg.ResubscribeInterval, "Delay before reconnecting a lost detection stream (0 disables)")
	flag.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "Bound on each capture or analysis call (0 disables)")

	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "Vision provider: gemini, openai")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Vision model (provider default if empty)")
	flag.StringVar(&cfg.Prompt, "prompt", cfg.Prompt, "Analysis prompt (built-in default if empty)")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Inference API base URL (overrides INFERENCE_BASE_URL)")

	flag.Parse()
	return cfg
}

// configPath finds -config ahead of flag.Parse so the file can seed defaults.
func configPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
