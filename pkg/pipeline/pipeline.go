// Package pipeline runs the capture-and-analyze state machine.
//
// An Orchestrator owns the single PipelineState. Each trigger, whether a
// manual call or a detection event, starts one run: capture an image, then
// analyze it. State transitions are published in order to watchers:
//
//	Idle/Result/Failed --trigger--> Capturing
//	Capturing --ok--> Captured --> Analyzing
//	Capturing --cancel--> Idle
//	Capturing --error--> Failed (no image)
//	Analyzing --ok--> Result
//	Analyzing --error--> Failed (with image)
//
// At most one run is in flight. Triggers arriving during a run are handled by
// the configured BusyPolicy. Nothing is retried automatically.
package pipeline

import (
	"context"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
)

// ImageSource acquires one encoded image. capture.Source implements it.
type ImageSource interface {
	Capture(ctx context.Context, mode capture.Mode) ([]byte, error)
}

// Analyzer describes an image. inference.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (string, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, image []byte) (string, error)

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Outcome reports how a trigger was handled.
type Outcome string

// Trigger outcomes.
const (
	OutcomeStarted Outcome = "started"
	OutcomeQueued  Outcome = "queued"
	OutcomeDropped Outcome = "dropped"
)

// Stats contains orchestrator statistics.
type Stats struct {
	Phase           Phase `json:"phase"`
	Subscribed      bool  `json:"subscribed"`
	RunsStarted     int64 `json:"runs_started"`
	RunsSucceeded   int64 `json:"runs_succeeded"`
	RunsFailed      int64 `json:"runs_failed"`
	RunsCancelled   int64 `json:"runs_cancelled"`
	TriggersQueued  int64 `json:"triggers_queued"`
	TriggersDropped int64 `json:"triggers_dropped"`
	DetectionEvents int64 `json:"detection_events"`
	Resubscribes    int64 `json:"resubscribes"`
}
