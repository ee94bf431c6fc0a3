package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
)

// BusyPolicy decides what happens to a trigger that arrives while a run is
// in flight.
type BusyPolicy string

const (
	// PolicyDrop discards the trigger.
	PolicyDrop BusyPolicy = "drop"

	// PolicyQueue keeps exactly one pending trigger, started as soon as the
	// in-flight run settles. A newer trigger replaces an older pending one.
	PolicyQueue BusyPolicy = "queue"
)

// ParseBusyPolicy parses "drop" or "queue".
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch p := BusyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDrop, PolicyQueue:
		return p, nil
	default:
		return "", fmt.Errorf("pipeline: unknown busy policy %q (want drop or queue)", s)
	}
}

// Config holds orchestrator configuration.
type Config struct {
	// Policy applies to triggers arriving during a run.
	Policy BusyPolicy

	// DetectionMode is the capture mode used for detection-triggered runs.
	DetectionMode capture.Mode

	// ResubscribeInterval is the delay before resubscribing after the
	// detection stream terminates. Zero disables resubscription.
	ResubscribeInterval time.Duration

	// RunTimeout bounds each collaborator call. Zero means no bound.
	RunTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Policy:              PolicyQueue,
		DetectionMode:       capture.ModeLive,
		ResubscribeInterval: 2 * time.Second,
		Logger:              slog.Default(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := ParseBusyPolicy(string(c.Policy)); err != nil {
		return err
	}
	if _, err := capture.ParseMode(string(c.DetectionMode)); err != nil {
		return fmt.Errorf("pipeline: detection mode: %w", err)
	}
	if c.ResubscribeInterval < 0 {
		return fmt.Errorf("pipeline: resubscribe interval must be >= 0, got %v", c.ResubscribeInterval)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("pipeline: run timeout must be >= 0, got %v", c.RunTimeout)
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Config)

// WithBusyPolicy sets the busy policy.
func WithBusyPolicy(p BusyPolicy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithDetectionMode sets the capture mode for detection-triggered runs.
func WithDetectionMode(m capture.Mode) Option {
	return func(c *Config) { c.DetectionMode = m }
}

// WithResubscribeInterval sets the resubscription delay; 0 disables it.
func WithResubscribeInterval(d time.Duration) Option {
	return func(c *Config) { c.ResubscribeInterval = d }
}

// WithRunTimeout bounds each capture and analysis call.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Config) { c.RunTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}
