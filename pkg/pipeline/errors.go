package pipeline

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
)

// Sentinel errors.
var (
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("pipeline: orchestrator stopped")

	// ErrNoSource is returned by New when the image source is nil.
	ErrNoSource = errors.New("pipeline: image source required")

	// ErrNoAnalyzer is returned by New when the analyzer is nil.
	ErrNoAnalyzer = errors.New("pipeline: analyzer required")
)

// AcquisitionError is a visible capture failure (device unavailable,
// permission denied, empty image). User cancellation is not an
// AcquisitionError.
type AcquisitionError struct {
	Mode capture.Mode
	Err  error
}

// Error implements the error interface.
func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("pipeline: capture (%s) failed: %v", e.Mode, e.Err)
}

// Unwrap returns the underlying error.
func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// AnalysisError is a failure from the analysis service.
type AnalysisError struct {
	Err error
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	return fmt.Sprintf("pipeline: analysis failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *AnalysisError) Unwrap() error {
	return e.Err
}
