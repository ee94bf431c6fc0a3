package inference

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// Connection
	BaseURL string // API base URL
	APIKey  string // API key (optional for local providers)

	// VisionModel is the default model for image analysis.
	VisionModel string

	// Request defaults
	MaxTokens   int
	Temperature float64

	// Timeout bounds a single analysis request.
	Timeout time.Duration

	// Transport-level retry for 429/5xx responses. Zero disables it; the
	// pipeline itself never retries a failed analysis.
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
// Examples: "https://api.openai.com/v1", "http://localhost:11434/v1"
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithVisionModel sets the vision model.
func WithVisionModel(model string) Option {
	return func(c *Config) { c.VisionModel = model }
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures transport retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://api.openai.com/v1",
		VisionModel: "gpt-4o-mini",
		MaxTokens:   1000,
		Temperature: 0.4,
		Timeout:     30 * time.Second,
		MaxRetries:  0,
		RetryDelay:  250 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// resolve fills request fields left at zero from the config.
func (c *Config) resolve(req *VisionRequest) (model string, maxTokens int, temp float64) {
	model, maxTokens, temp = req.Model, req.MaxTokens, req.Temperature
	if model == "" {
		model = c.VisionModel
	}
	if maxTokens == 0 {
		maxTokens = c.MaxTokens
	}
	if temp == 0 {
		temp = c.Temperature
	}
	return model, maxTokens, temp
}
