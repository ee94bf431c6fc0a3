package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-photoanalyzer/internal/httpc"
)

// DefaultMaxSnapshotBytes bounds a single snapshot download.
const DefaultMaxSnapshotBytes = 8 << 20

// Snapshot captures live frames from a networked camera exposing a JPEG
// snapshot endpoint, e.g. an ESP32-CAM's /capture.
type Snapshot struct {
	url      string
	maxBytes int64
	http     *http.Client
	logger   *slog.Logger
}

// NewSnapshot creates a Snapshot source for url.
func NewSnapshot(url string, timeout time.Duration, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Snapshot{
		url:      url,
		maxBytes: DefaultMaxSnapshotBytes,
		http:     httpc.NewClient(timeout),
		logger:   logger.With("component", "capture.snapshot"),
	}
}

// Capture fetches one frame.
func (s *Snapshot) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	start := time.Now()

	data, err := httpc.Fetch(ctx, s.http, s.url, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	s.logger.Debug("snapshot captured",
		"bytes", len(data),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return data, nil
}

var _ Source = (*Snapshot)(nil)
