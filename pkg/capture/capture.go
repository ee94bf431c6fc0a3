// Package capture acquires single still images from a live device or from
// stored media.
//
// A Source returns encoded image bytes (JPEG or PNG) for one capture request.
// Cancellation by the user is reported as ErrCancelled so callers can abandon
// the request without treating it as a failure.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects where an image comes from.
type Mode string

const (
	// ModeLive captures a fresh frame from an active capture device.
	ModeLive Mode = "live"
	// ModeStored picks an existing image from stored media.
	ModeStored Mode = "stored"
)

// Sentinel errors for the capture package.
var (
	// ErrCancelled indicates the user abandoned the capture or picker.
	ErrCancelled = errors.New("capture: cancelled by user")

	// ErrDeviceUnavailable indicates the capture device could not be opened or read.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrNoImages indicates stored media contains nothing to pick.
	ErrNoImages = errors.New("capture: no stored images")

	// ErrModeUnsupported indicates no source is configured for the requested mode.
	ErrModeUnsupported = errors.New("capture: mode not supported")

	// ErrEmptyImage indicates a source produced zero bytes.
	ErrEmptyImage = errors.New("capture: empty image")
)

// ParseMode converts a string to a Mode.
// Accepts "live"/"camera" and "stored"/"gallery"/"photos".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "camera":
		return ModeLive, nil
	case "stored", "gallery", "photos":
		return ModeStored, nil
	default:
		return "", fmt.Errorf("capture: unknown mode %q", s)
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}

// Source acquires a single encoded image.
type Source interface {
	// Capture blocks until an image is available, the user cancels
	// (ErrCancelled), or acquisition fails.
	Capture(ctx context.Context, mode Mode) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, mode Mode) ([]byte, error)

// Capture calls f.
func (f SourceFunc) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	return f(ctx, mode)
}

// Router dispatches capture requests to a per-mode Source.
type Router struct {
	Live   Source
	Stored Source
}

// Capture implements Source.
func (r *Router) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	var src Source
	switch mode {
	case ModeLive:
		src = r.Live
	case ModeStored:
		src = r.Stored
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrModeUnsupported, mode)
	}

	data, err := src.Capture(ctx, mode)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// IsCancelled reports whether err represents a user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Verify Router implements Source at compile time.
var _ Source = (*Router)(nil)
