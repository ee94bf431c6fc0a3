// Package analyzer wires the photo analyzer application: image sources,
// the vision provider, the detection stream, the pipeline orchestrator and
// the web server.
package analyzer

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-photoanalyzer/internal/config"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
	"github.com/teslashibe/go-photoanalyzer/pkg/pipeline"
)

// Default configuration values.
const (
	DefaultPort     = 8080
	DefaultProvider = "gemini"
	DefaultPick     = PickLatest
)

// Gallery pick strategies.
const (
	PickLatest = "latest"
	PickPrompt = "prompt"
)

// Config holds all configuration for the photo analyzer.
// Flag parsing is done in cmd/photo-analyzer/main.go; this struct is data only.
// Precedence is defaults, then the YAML file, then flags, then environment
// variables for anything still unset.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug"`

	// Port is the web server port.
	Port int `yaml:"port"`

	// StaticDir is served at "/" when set.
	StaticDir string `yaml:"static_dir"`

	// Live capture. SnapshotURL takes precedence over CameraDevice.
	CameraDevice string `yaml:"camera"`       // OpenCV device index or stream URL
	SnapshotURL  string `yaml:"snapshot_url"` // HTTP JPEG snapshot endpoint

	// Stored capture.
	GalleryDir string `yaml:"gallery"`
	Pick       string `yaml:"pick"` // "latest" or "prompt"

	// Detection stream. At most one of SerialPort and DetectURL.
	SerialPort  string `yaml:"serial"`
	BaudRate    int    `yaml:"baud"`
	DetectURL   string `yaml:"detect_url"`
	DetectToken string `yaml:"detect_token"`

	// Pipeline.
	Policy              string        `yaml:"policy"`
	ResubscribeInterval time.Duration `yaml:"resubscribe"`
	RunTimeout          time.Duration `yaml:"run_timeout"`

	// Inference.
	Provider string `yaml:"provider"` // "gemini" or "openai"
	Model    string `yaml:"model"`
	Prompt   string `yaml:"prompt"`
	BaseURL  string `yaml:"base_url"`

	// API Keys (typically from environment variables).
	GoogleAPIKey string `yaml:"google_api_key"`
	OpenAIKey    string `yaml:"openai_api_key"`
}

// DefaultConfig returns sensible defaults for the photo analyzer.
func DefaultConfig() Config {
	return Config{
		Port:                DefaultPort,
		Pick:                DefaultPick,
		BaudRate:            detection.DefaultBaudRate,
		DetectToken:         detection.DefaultToken,
		Policy:              string(pipeline.PolicyQueue),
		ResubscribeInterval: 2 * time.Second,
		RunTimeout:          60 * time.Second,
		Provider:            DefaultProvider,
	}
}

// LoadFile reads a YAML config file over DefaultConfig. Durations are
// written as Go duration strings ("2s").
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvConfig fills unset values from environment variables.
// Call this after flag parsing so flags take precedence.
func (c *Config) LoadEnvConfig() {
	if c.GoogleAPIKey == "" {
		c.GoogleAPIKey = config.FirstString("", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	}
	if c.OpenAIKey == "" {
		c.OpenAIKey = config.String("OPENAI_API_KEY", "")
	}
	if c.CameraDevice == "" {
		c.CameraDevice = config.String("CAMERA_DEVICE", "")
	}
	if c.SnapshotURL == "" {
		c.SnapshotURL = config.String("SNAPSHOT_URL", "")
	}
	if c.GalleryDir == "" {
		c.GalleryDir = config.String("GALLERY_DIR", "")
	}
	if c.SerialPort == "" {
		c.SerialPort = config.String("DETECT_SERIAL", "")
	}
	if c.DetectURL == "" {
		c.DetectURL = config.String("DETECT_URL", "")
	}
	if c.BaseURL == "" {
		c.BaseURL = config.String("INFERENCE_BASE_URL", "")
	}
	if c.Model == "" {
		c.Model = config.String("INFERENCE_MODEL", "")
	}
	c.Debug = c.Debug || config.Bool("DEBUG", false)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "gemini", "google":
		if c.GoogleAPIKey == "" {
			return &ConfigError{Field: "GoogleAPIKey", Message: "GOOGLE_API_KEY (or GEMINI_API_KEY) environment variable is required for Gemini"}
		}
	case "openai":
		if c.OpenAIKey == "" && c.BaseURL == "" {
			return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY is required unless -base-url points at a local server"}
		}
	default:
		return &ConfigError{Field: "Provider", Message: fmt.Sprintf("unknown provider %q (want gemini or openai)", c.Provider)}
	}

	if c.CameraDevice == "" && c.SnapshotURL == "" && c.GalleryDir == "" {
		return &ConfigError{Field: "Capture", Message: "configure at least one image source (-camera, -snapshot-url or -gallery)"}
	}
	if c.Pick != PickLatest && c.Pick != PickPrompt {
		return &ConfigError{Field: "Pick", Message: fmt.Sprintf("unknown pick strategy %q (want latest or prompt)", c.Pick)}
	}
	if c.SerialPort != "" && c.DetectURL != "" {
		return &ConfigError{Field: "Detection", Message: "use either -serial or -detect-url, not both"}
	}
	if _, err := pipeline.ParseBusyPolicy(c.Policy); err != nil {
		return &ConfigError{Field: "Policy", Message: err.Error()}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Message: fmt.Sprintf("invalid port %d", c.Port)}
	}
	return nil
}

// HasDetection reports whether a detection stream is configured.
func (c *Config) HasDetection() bool {
	return c.SerialPort != "" || c.DetectURL != ""
}

// APIKey returns the key for the configured provider.
func (c *Config) APIKey() string {
	if strings.ToLower(c.Provider) == "openai" {
		return c.OpenAIKey
	}
	return c.GoogleAPIKey
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
